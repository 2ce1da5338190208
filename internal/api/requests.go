// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

package api

import (
	"github.com/openlancer/relay/internal/models"
)

// CreateGroupRequest creates a group room.
type CreateGroupRequest struct {
	Name      string          `json:"name" validate:"required,max=128"`
	MemberIDs []models.UserID `json:"memberIds" validate:"required,min=1"`
}

// AddMemberRequest adds a user to a group room.
type AddMemberRequest struct {
	UserID models.UserID `json:"userId" validate:"required"`
}
