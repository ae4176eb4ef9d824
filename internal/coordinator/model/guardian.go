package model

// GuardianStatus is the guardian membership lifecycle (spec.md §3
// "Guardian record").
type GuardianStatus string

const (
	GuardianInvited GuardianStatus = "Invited"
	GuardianActive  GuardianStatus = "Active"
	GuardianInactive GuardianStatus = "Inactive"
	GuardianRemoved GuardianStatus = "Removed"
)

// Guardian is one vault member's identity and membership record. It never
// carries share material — shares are strictly local to the guardian
// process (spec.md §5 "Shared resources").
type Guardian struct {
	GuardianID      string         `bson:"_id" json:"guardian_id"`
	VaultID         string         `bson:"vault_id" json:"vault_id"`
	Name            string         `bson:"name" json:"name"`
	Email           string         `bson:"email" json:"email"`
	Role            string         `bson:"role" json:"role"`
	Status          GuardianStatus `bson:"status" json:"status"`
	ShareID         int            `bson:"share_id" json:"share_id"`
	InvitationCode  string         `bson:"invitation_code,omitempty" json:"invitation_code,omitempty"`
	InvitationUsed  bool           `bson:"invitation_used" json:"invitation_used"`
}
