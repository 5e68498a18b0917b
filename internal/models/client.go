package models

// Client is a catalog payee (writer, publisher, administrator).
type Client struct {
	ID   string `gorm:"primaryKey" json:"id"`
	Name string `gorm:"index" json:"name"`
}
