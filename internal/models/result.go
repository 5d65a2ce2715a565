package models

// IngestionCounts is the return contract of every ingestion operation.
// It is never persisted.
//
// Convention: Dropped counts items discarded before normalization because
// they had no stable identity (deliberate, logged at debug); Skipped
// counts insert-time duplicates only. The two are kept distinct so a
// normalization bug is not masked as benign dedup.
type IngestionCounts struct {
	Fetched  int `json:"fetched"`
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
	Dropped  int `json:"dropped"`
	Errors   int `json:"errors"`
}

// Add accumulates other into c.
func (c *IngestionCounts) Add(other IngestionCounts) {
	c.Fetched += other.Fetched
	c.Inserted += other.Inserted
	c.Skipped += other.Skipped
	c.Dropped += other.Dropped
	c.Errors += other.Errors
}
