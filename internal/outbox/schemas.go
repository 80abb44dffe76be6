package outbox

const activityRecordedSchema = `{
  "type": "object",
  "title": "ActivityRecorded",
  "properties": {
    "activity_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "kind": {"type": "string", "examples": ["outfit_logged", "streak_reached", "item_added", "outfit_deleted"]},
    "description": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"},
    "source": {"type": "string"},
    "version": {"type": "string"}
  },
  "required": ["activity_id", "tenant_id", "user_id", "kind", "description", "occurred_at", "source", "version"],
  "additionalProperties": false
}`
