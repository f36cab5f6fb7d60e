package models

// ContactStatus is the lifecycle of a contact request.
type ContactStatus string

const (
	ContactPending  ContactStatus = "pending"
	ContactAccepted ContactStatus = "accepted"
	ContactRejected ContactStatus = "rejected"
)

// Contact is a directed edge from one user to another. The (UserID,
// ContactID) pair is unique; adding the same contact twice is a conflict.
type Contact struct {
	BaseModel
	UserID    uint          `gorm:"not null;uniqueIndex:idx_user_contact" json:"userId"`
	ContactID uint          `gorm:"not null;uniqueIndex:idx_user_contact" json:"contactId"`
	Status    ContactStatus `gorm:"type:varchar(20);default:'pending'" json:"status"`

	User    User `gorm:"foreignKey:UserID" json:"-"`
	Contact User `gorm:"foreignKey:ContactID" json:"contact,omitempty"`
}

// TableName specifies the table name for the Contact model.
func (Contact) TableName() string {
	return "contacts"
}
