package types

// LSP protocol lifecycle methods
const (
	// MethodInitialize is sent as the first request from client to server
	MethodInitialize = "initialize"
	// MethodInitialized is sent from client to server after the initialize response
	MethodInitialized = "initialized"
	// MethodShutdown is sent from client to server to shutdown the server
	MethodShutdown = "shutdown"
	// MethodExit is sent from client to server to exit the server process
	MethodExit = "exit"
	// MethodCancelRequest asks the server to cancel an in-flight request
	MethodCancelRequest = "$/cancelRequest"
)

// LSP document synchronization methods
const (
	// MethodTextDocumentDidOpen is sent when a document is opened
	MethodTextDocumentDidOpen = "textDocument/didOpen"
	// MethodTextDocumentDidChange is sent when an open document's content changes
	MethodTextDocumentDidChange = "textDocument/didChange"
	// MethodTextDocumentDidClose is sent when a document is closed
	MethodTextDocumentDidClose = "textDocument/didClose"
	// MethodPublishDiagnostics is the server push carrying per-file diagnostics
	MethodPublishDiagnostics = "textDocument/publishDiagnostics"
)

// LSP language feature methods
const (
	// MethodTextDocumentHover provides hover information for symbols
	MethodTextDocumentHover = "textDocument/hover"
	// MethodTextDocumentDefinition provides go-to-definition functionality
	MethodTextDocumentDefinition = "textDocument/definition"
	// MethodTextDocumentReferences finds all references to a symbol
	MethodTextDocumentReferences = "textDocument/references"
	// MethodTextDocumentCompletion provides auto-completion suggestions
	MethodTextDocumentCompletion = "textDocument/completion"
	// MethodCompletionItemResolve fills in lazy completion item details
	MethodCompletionItemResolve = "completionItem/resolve"
	// MethodTextDocumentSignatureHelp provides call signature information
	MethodTextDocumentSignatureHelp = "textDocument/signatureHelp"
	// MethodTextDocumentCodeAction returns available code actions for a range
	MethodTextDocumentCodeAction = "textDocument/codeAction"
	// MethodTextDocumentFormatting formats a whole document
	MethodTextDocumentFormatting = "textDocument/formatting"
	// MethodTextDocumentRename renames a symbol across the workspace
	MethodTextDocumentRename = "textDocument/rename"
	// MethodTextDocumentDocumentSymbol returns document symbols outline
	MethodTextDocumentDocumentSymbol = "textDocument/documentSymbol"
	// MethodWorkspaceSymbol provides workspace-wide symbol search
	MethodWorkspaceSymbol = "workspace/symbol"
	// MethodWorkspaceConfiguration is a server-initiated configuration pull
	MethodWorkspaceConfiguration = "workspace/configuration"
)
