package models

// Location is a named patrol checkpoint. IDs are assigned by the locations
// manager, never by the caller.
type Location struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Floor string `json:"floor"`
}
