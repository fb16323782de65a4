package sql

import (
	"database/sql"
)

type UserAccount struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	CreatedAt   int64  `json:"created_at"`
}

type UserGroup struct {
	ID         int64  `json:"id"`
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
}

type JsonDatum struct {
	Hash string `json:"hash"`
	Data []byte `json:"data"`
}

type BpmnProcessDefinition struct {
	ID                   int64          `json:"id"`
	BpmnIdentifier       string         `json:"bpmn_identifier"`
	BpmnName             string         `json:"bpmn_name"`
	SingleProcessHash    string         `json:"single_process_hash"`
	FullProcessModelHash sql.NullString `json:"full_process_model_hash"`
	PropertiesJson       []byte         `json:"properties_json"`
	CreatedAt            int64          `json:"created_at"`
}

type TaskDefinition struct {
	ID                      int64  `json:"id"`
	BpmnProcessDefinitionID int64  `json:"bpmn_process_definition_id"`
	BpmnIdentifier          string `json:"bpmn_identifier"`
	BpmnName                string `json:"bpmn_name"`
	Typename                string `json:"typename"`
	PropertiesJson          []byte `json:"properties_json"`
}

type ProcessInstance struct {
	ID                      int64           `json:"id"`
	ProcessModelIdentifier  string          `json:"process_model_identifier"`
	ProcessInitiatorID      int64           `json:"process_initiator_id"`
	BpmnProcessDefinitionID sql.NullInt64   `json:"bpmn_process_definition_id"`
	BpmnProcessID           sql.NullInt64   `json:"bpmn_process_id"`
	Status                  string          `json:"status"`
	StartInSeconds          sql.NullFloat64 `json:"start_in_seconds"`
	EndInSeconds            sql.NullFloat64 `json:"end_in_seconds"`
	CreatedAt               int64           `json:"created_at"`
	UpdatedAt               int64           `json:"updated_at"`
}

type BpmnProcess struct {
	ID                      int64          `json:"id"`
	Guid                    sql.NullString `json:"guid"`
	BpmnProcessDefinitionID int64          `json:"bpmn_process_definition_id"`
	ProcessInstanceID       int64          `json:"process_instance_id"`
	TopLevelProcessID       int64          `json:"top_level_process_id"`
	DirectParentProcessID   sql.NullInt64  `json:"direct_parent_process_id"`
	JsonDataHash            string         `json:"json_data_hash"`
	PropertiesJson          []byte         `json:"properties_json"`
}

type Task struct {
	ID                int64           `json:"id"`
	Guid              string          `json:"guid"`
	BpmnProcessID     int64           `json:"bpmn_process_id"`
	ProcessInstanceID int64           `json:"process_instance_id"`
	TaskDefinitionID  int64           `json:"task_definition_id"`
	State             string          `json:"state"`
	PropertiesJson    []byte          `json:"properties_json"`
	JsonDataHash      string          `json:"json_data_hash"`
	StartInSeconds    sql.NullFloat64 `json:"start_in_seconds"`
	EndInSeconds      sql.NullFloat64 `json:"end_in_seconds"`
}

type HumanTask struct {
	ID                    int64          `json:"id"`
	ProcessInstanceID     int64          `json:"process_instance_id"`
	TaskGuid              string         `json:"task_guid"`
	TaskName              string         `json:"task_name"`
	TaskTitle             string         `json:"task_title"`
	TaskType              string         `json:"task_type"`
	TaskStatus            string         `json:"task_status"`
	LaneName              sql.NullString `json:"lane_name"`
	LaneAssignmentID      sql.NullInt64  `json:"lane_assignment_id"`
	BpmnProcessIdentifier string         `json:"bpmn_process_identifier"`
	Completed             bool           `json:"completed"`
	CompletedByUserID     sql.NullInt64  `json:"completed_by_user_id"`
	CreatedAt             int64          `json:"created_at"`
	UpdatedAt             int64          `json:"updated_at"`
}

type HumanTaskUser struct {
	HumanTaskID int64  `json:"human_task_id"`
	UserID      int64  `json:"user_id"`
	AddedBy     string `json:"added_by"`
}

type ProcessInstanceEvent struct {
	ID                int64          `json:"id"`
	ProcessInstanceID int64          `json:"process_instance_id"`
	TaskGuid          sql.NullString `json:"task_guid"`
	EventType         string         `json:"event_type"`
	UserID            sql.NullInt64  `json:"user_id"`
	Timestamp         float64        `json:"timestamp"`
}

type ProcessInstanceErrorDetail struct {
	ID                     int64  `json:"id"`
	ProcessInstanceEventID int64  `json:"process_instance_event_id"`
	Message                string `json:"message"`
	Stacktrace             string `json:"stacktrace"`
}
