package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType classifies a log line for filtering and alerting.
	FieldEventType = "event_type"
	// FieldErrorHint tells an operator where to look next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldPassID identifies one collector scan pass.
	FieldPassID = "pass_id"
	// FieldBarcode is the plate barcode parsed from a directory name.
	FieldBarcode = "barcode"
	// FieldDirectory is a plate image directory path.
	FieldDirectory = "directory"
	// FieldFilename is an image file path.
	FieldFilename = "filename"
)
