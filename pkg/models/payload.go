package models

import "time"

// Payload is the intake unit (for example one study) that triggers workflow instances.
type Payload struct {
	PayloadID           string    `json:"payload_id"            bson:"_id"`
	Bucket              string    `json:"bucket"                bson:"bucket"`
	CalledAeTitle       string    `json:"called_ae_title"       bson:"called_ae_title"`
	CallingAeTitle      string    `json:"calling_ae_title"      bson:"calling_ae_title"`
	CorrelationID       string    `json:"correlation_id"        bson:"correlation_id"`
	Timestamp           time.Time `json:"timestamp"             bson:"timestamp"`
	WorkflowInstanceIDs []string  `json:"workflow_instance_ids" bson:"workflow_instance_ids"`
}

// ArtifactType classifies a received artifact.
type ArtifactType string

const (
	ArtifactTypeUnset ArtifactType = "Unset"
	ArtifactTypeDICOM ArtifactType = "DICOM"
	ArtifactTypeDOC   ArtifactType = "DOC"
	ArtifactTypeCSV   ArtifactType = "CSV"
	ArtifactTypeJSON  ArtifactType = "JSON"
	ArtifactTypeOther ArtifactType = "Other"
)

// ArtifactReceived is one artifact delivered for a task.
type ArtifactReceived struct {
	Name string       `json:"name" bson:"name"`
	Type ArtifactType `json:"type" bson:"type"`
	Path string       `json:"path" bson:"path"`
}

// ArtifactReceivedItem records one ArtifactsReceivedEvent bound to an instance task.
type ArtifactReceivedItem struct {
	ID                 string             `json:"id"                   bson:"_id"`
	WorkflowInstanceID string             `json:"workflow_instance_id" bson:"workflow_instance_id"`
	TaskID             string             `json:"task_id"              bson:"task_id"`
	CorrelationID      string             `json:"correlation_id"       bson:"correlation_id"`
	Artifacts          []ArtifactReceived `json:"artifacts"            bson:"artifacts"`
	Received           time.Time          `json:"received"             bson:"received"`
}
