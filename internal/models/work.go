package models

// Work is a catalog composition. The catalog is owned elsewhere; this service only reads it.
type Work struct {
	ID         string `gorm:"primaryKey" json:"id"`
	Title      string `gorm:"index" json:"title"`
	ExternalID string `gorm:"index" json:"external_id"`
	ISWC       string `gorm:"column:iswc;index" json:"iswc"`
}
