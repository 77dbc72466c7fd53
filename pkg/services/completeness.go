package services

import (
	"strings"

	"church-admin-backend/pkg/models"
)

// 担任领袖所需的人员资料字段（报告中使用的名称）
const (
	FieldNames      = "names"
	FieldSurnames   = "surnames"
	FieldNationalID = "national_id"
	FieldEmail      = "email"
	FieldPhone      = "phone"
	FieldGender     = "gender"
	FieldBirthDate  = "birth_date"
	FieldAddress    = "address"
)

// MissingLeaderFields lists, in a fixed order, the required fields that are
// empty or blank on p. A nil person misses all of them.
func MissingLeaderFields(p *models.Person) []string {
	if p == nil {
		p = &models.Person{}
	}
	checks := []struct {
		name  string
		empty bool
	}{
		{FieldNames, blank(p.Names)},
		{FieldSurnames, blank(p.Surnames)},
		{FieldNationalID, blank(p.NationalID)},
		{FieldEmail, blank(p.Email)},
		{FieldPhone, blank(p.Phone)},
		{FieldGender, blank(p.Gender)},
		{FieldBirthDate, p.BirthDate == nil || p.BirthDate.IsZero()},
		{FieldAddress, blank(p.Address)},
	}

	missing := []string{}
	for _, c := range checks {
		if c.empty {
			missing = append(missing, c.name)
		}
	}
	return missing
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// displayName 优先使用人员姓名，否则退回到用户名
func displayName(p *models.Person, handle string) string {
	if p != nil {
		if name := strings.TrimSpace(p.FullName()); name != "" {
			return name
		}
	}
	return handle
}
