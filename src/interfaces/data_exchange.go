package interfaces

// -----------------------------------------------------------------------------
// IDataExchanger shares replies and routed events with external renderers.
// -----------------------------------------------------------------------------

type IDataExchanger interface {
	// -----------------------------------------------------------------------------
	// Broadcast pushes a payload to every connected renderer.
	Broadcast(payload interface{})

	// -----------------------------------------------------------------------------
	// UpdateAllDatas replaces the snapshot served to newly connected renderers.
	UpdateAllDatas(data interface{})

	// -----------------------------------------------------------------------------
	// Start the server
	Start() error

	// -----------------------------------------------------------------------------
	// Stop the server gracefully
	Stop() error
}
