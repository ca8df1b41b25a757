package domain

import "time"

// Room is a two-party conversation scoped to an order. Rooms are created
// externally when an order is placed; the chat core only reads them.
type Room struct {
	ID        string    `json:"id"`
	LessorID  string    `json:"lessor_id"`
	RenterID  string    `json:"renter_id"`
	OrderID   string    `json:"order_id"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// HasParticipant reports whether userID is one of the room's two parties.
func (r *Room) HasParticipant(userID string) bool {
	return userID == r.LessorID || userID == r.RenterID
}

// RoomModel is the GORM model for the rooms table.
type RoomModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	LessorID  string    `gorm:"type:varchar(36);index;not null"`
	RenterID  string    `gorm:"type:varchar(36);index;not null"`
	OrderID   string    `gorm:"type:varchar(36);not null"`
	IsActive  bool      `gorm:"not null;default:true"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for RoomModel.
func (RoomModel) TableName() string {
	return "chat_rooms"
}

// ToDomain converts RoomModel to a domain Room.
func (m *RoomModel) ToDomain() *Room {
	return &Room{
		ID:        m.ID,
		LessorID:  m.LessorID,
		RenterID:  m.RenterID,
		OrderID:   m.OrderID,
		IsActive:  m.IsActive,
		CreatedAt: m.CreatedAt,
	}
}

// RoomToModel converts a domain Room to RoomModel.
func RoomToModel(r *Room) *RoomModel {
	return &RoomModel{
		ID:        r.ID,
		LessorID:  r.LessorID,
		RenterID:  r.RenterID,
		OrderID:   r.OrderID,
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt,
	}
}
