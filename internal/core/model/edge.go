package model

// Relationship types written by the folding engine.
const (
	// Document -> Revision
	RelContains = "CONTAINS"
	// Revision -> next Revision of the same document
	RelParentOf = "PARENT_OF"
	// Revision -> Content it produced
	RelChangedTo = "CHANGED_TO"
	// Content -> Content the document was next edited into
	RelEdit = "EDIT"
)
