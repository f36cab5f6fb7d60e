package models

// User represents an account in the system. Profile fields beyond email are
// filled in by the profile-setup flow after signup.
type User struct {
	BaseModel
	Email        string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"type:varchar(255);not null" json:"-"`
	FirstName    string `gorm:"type:varchar(100)" json:"firstName,omitempty"`
	LastName     string `gorm:"type:varchar(100)" json:"lastName,omitempty"`
	Image        string `gorm:"type:varchar(255)" json:"image,omitempty"`
	Color        int    `json:"color"`
	ProfileSetup bool   `gorm:"default:false" json:"profileSetup"`
}

// TableName specifies the table name for the User model.
func (User) TableName() string {
	return "users"
}
