package storage

type Migration struct {
	ID      string `gorm:"primarykey"`
	Version int
}
