package otel

const (
	Prefix                     = "zentask-"
	AttributeProcessInstanceId = Prefix + "instance-id"
	AttributeProcessModel      = Prefix + "process-model"
	AttributeTaskGuid          = Prefix + "task-guid"
	AttributeTaskSpec          = Prefix + "task-spec"
	AttributeTaskCount         = Prefix + "task-count"
	AttributeBpmnProcessId     = Prefix + "bpmn-process-id"
	AttributeDefinitionHash    = Prefix + "definition-hash"
	AttributeProcessInstanceOp = Prefix + "operation"
)
