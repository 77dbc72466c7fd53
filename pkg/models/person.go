package models

import "time"

// Person 教会成员的基本资料
type Person struct {
	ID             string     `json:"id" db:"id"`
	Names          string     `json:"names" db:"names"`
	Surnames       string     `json:"surnames" db:"surnames"`
	NationalID     string     `json:"national_id" db:"national_id"`
	Email          string     `json:"email,omitempty" db:"email"`
	Phone          string     `json:"phone,omitempty" db:"phone"`
	Gender         string     `json:"gender,omitempty" db:"gender"`
	BirthDate      *time.Time `json:"birth_date,omitempty" db:"birth_date"`
	Address        string     `json:"address,omitempty" db:"address"`
	EducationLevel string     `json:"education_level,omitempty" db:"education_level"`
	Occupation     string     `json:"occupation,omitempty" db:"occupation"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// FullName returns "names surnames", falling back to whichever part is present.
func (p *Person) FullName() string {
	switch {
	case p == nil:
		return ""
	case p.Names != "" && p.Surnames != "":
		return p.Names + " " + p.Surnames
	case p.Names != "":
		return p.Names
	default:
		return p.Surnames
	}
}
