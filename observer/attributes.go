package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for assistant observability spans and metrics.
var (
	AttrThreadID  = attribute.Key("assistant.thread_id")
	AttrRunID     = attribute.Key("assistant.run_id")
	AttrRunStatus = attribute.Key("assistant.run_status")
	AttrAPIMethod = attribute.Key("assistant.api_method")

	AttrToolName         = attribute.Key("tool.name")
	AttrToolStatus       = attribute.Key("tool.status")
	AttrToolResultLength = attribute.Key("tool.result_length")
)
