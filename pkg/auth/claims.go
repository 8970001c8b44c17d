package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/angelmondragon/holopos/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
)

// SubjectID accepts both numeric and string user ids; the backend emits integers.
type SubjectID string

func (s *SubjectID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*s = SubjectID(raw)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("user_id must be a string or number: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("user_id must be an integer: %w", err)
	}
	*s = SubjectID(n.String())
	return nil
}

func (s SubjectID) String() string {
	return string(s)
}

// AccessTokenClaims are the claims the backend signs into staff access tokens.
type AccessTokenClaims struct {
	UserID    SubjectID       `json:"user_id"`
	Username  string          `json:"username,omitempty"`
	Role      enums.StaffRole `json:"role,omitempty"`
	TokenType string          `json:"token_type,omitempty"`
	jwt.RegisteredClaims
}
