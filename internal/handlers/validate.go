// internal/handlers/validate.go
package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf16"

	"github.com/jason-s-yu/lobbyd/internal/lobby"
	"github.com/jason-s-yu/lobbyd/internal/models"
)

// metadataLength sums the lengths of every key and value in UTF-16 code units,
// the unit Discord clients measure in. Characters outside the BMP count as 2.
func metadataLength(metadata map[string]string) int {
	n := 0
	for k, v := range metadata {
		n += utf16Len(k) + utf16Len(v)
	}
	return n
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

func validateMetadata(field string, metadata map[string]string) *APIError {
	if metadataLength(metadata) > lobby.MaxMetadataLength {
		return invalidForm(field, "BASE_TYPE_MAX_LENGTH",
			fmt.Sprintf("Metadata total length cannot exceed %d characters", lobby.MaxMetadataLength))
	}
	return nil
}

func validateIdleTimeout(seconds *int) *APIError {
	if seconds == nil {
		return nil
	}
	if *seconds < lobby.MinIdleTimeoutSeconds || *seconds > lobby.MaxIdleTimeoutSeconds {
		return invalidForm("idle_timeout_seconds", "NUMBER_TYPE_MIN_MAX",
			fmt.Sprintf("Idle timeout must be between %d and %d seconds", lobby.MinIdleTimeoutSeconds, lobby.MaxIdleTimeoutSeconds))
	}
	return nil
}

func validateMembers(members *[]models.LobbyMember) *APIError {
	if members == nil {
		return nil
	}
	if len(*members) > lobby.MaxMembers {
		return tooManyMembers()
	}
	for i, m := range *members {
		if m.ID == "" {
			return invalidForm(fmt.Sprintf("members.%d.id", i), "BASE_TYPE_REQUIRED", "This field is required")
		}
		if err := validateMetadata(fmt.Sprintf("members.%d.metadata", i), m.Metadata); err != nil {
			return err
		}
	}
	return nil
}

func tooManyMembers() *APIError {
	return invalidForm("members", "BASE_TYPE_MAX_LENGTH",
		fmt.Sprintf("Lobbies cannot have more than %d members", lobby.MaxMembers))
}

// nullableMetadata tells an absent metadata field apart from an explicit null,
// which clears the lobby's metadata on update.
type nullableMetadata struct {
	Set   bool
	Value map[string]string
}

func (m *nullableMetadata) UnmarshalJSON(data []byte) error {
	m.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		m.Value = nil
		return nil
	}
	return json.Unmarshal(data, &m.Value)
}

// update returns the value for lobby.Update: nil when absent.
func (m nullableMetadata) update() *map[string]string {
	if !m.Set {
		return nil
	}
	v := m.Value
	return &v
}

// lobbyBody is the shared shape of create and update requests.
type lobbyBody struct {
	Metadata           nullableMetadata      `json:"metadata"`
	Members            *[]models.LobbyMember `json:"members"`
	IdleTimeoutSeconds *int                  `json:"idle_timeout_seconds"`
}

func (b lobbyBody) validate() *APIError {
	if err := validateMetadata("metadata", b.Metadata.Value); err != nil {
		return err
	}
	if err := validateIdleTimeout(b.IdleTimeoutSeconds); err != nil {
		return err
	}
	return validateMembers(b.Members)
}
