package models

// RebuildResult is the backend's acknowledgement of a knowledge-base build.
type RebuildResult struct {
	Status         string `json:"status"`
	DBName         string `json:"db_name"`
	ProcessedFiles int    `json:"processed_files"`
}
