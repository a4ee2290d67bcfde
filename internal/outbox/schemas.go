package outbox

const timeEntryCreatedSchema = `{
  "type": "object",
  "title": "TimeEntryCreated",
  "properties": {
    "entry_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "start_time": {"type": "string", "format": "date-time"},
    "is_running": {"type": "boolean"},
    "status": {"type": "string"}
  },
  "required": ["entry_id", "tenant_id", "user_id", "start_time", "is_running", "status"],
  "additionalProperties": false
}`

const timeEntryStateChangedSchema = `{
  "type": "object",
  "title": "TimeEntryStateChanged",
  "properties": {
    "entry_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "status": {"type": "string"},
    "is_running": {"type": "boolean"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["entry_id", "tenant_id", "user_id", "status", "is_running", "occurred_at"],
  "additionalProperties": false
}`
