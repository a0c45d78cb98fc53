/*
Copyright 2026 DaleStudy
SPDX-License-Identifier: Apache-2.0
*/

package events

// projectItemEvent is the shape of a projects_v2_item delivery. go-github's
// event type omits changes.field_value.field_name, which the Week filter
// needs, so the payload is declared here directly.
type projectItemEvent struct {
	Action string `json:"action"`

	ProjectsV2Item struct {
		NodeID        string `json:"node_id"`
		ContentNodeID string `json:"content_node_id"`
		ContentType   string `json:"content_type"`
	} `json:"projects_v2_item"`

	Changes struct {
		FieldValue struct {
			FieldName string `json:"field_name"`
			FieldType string `json:"field_type"`
		} `json:"field_value"`
	} `json:"changes"`

	Organization struct {
		Login string `json:"login"`
	} `json:"organization"`
}
