package model

import (
	"time"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Position{},
}

// Position is one captured ball position. ID and Timestamp are assigned by
// the database on insert.
type Position struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Z         float64   `json:"z"`
	Timestamp time.Time `json:"timestamp" gorm:"autoCreateTime;index"`
}

func (*Position) TableName() string {
	return "positions"
}
