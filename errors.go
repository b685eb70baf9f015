// errors.go: structured error definitions for the go-deploy system
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	stderrors "errors"
	"strings"
	"time"

	"github.com/agilira/go-errors"
)

// Error codes for the go-deploy system
const (
	// Request validation errors (1000-1099)
	ErrCodeMissingName    = "INPUT_1001"
	ErrCodeInvalidName    = "INPUT_1002"
	ErrCodeMissingContent = "INPUT_1003"
	ErrCodeDeployDisabled = "INPUT_1004"

	// Source access errors (1100-1199)
	ErrCodeDomainNotAllowed = "ACCESS_1101"
	ErrCodeSourceUnreadable = "ACCESS_1102"
	ErrCodeSourceNotFound   = "ACCESS_1103"
	ErrCodeFetchFailed      = "ACCESS_1104"

	// Extraction errors (1200-1299)
	ErrCodeCorruptArchive   = "EXTRACT_1201"
	ErrCodeExtractWrite     = "EXTRACT_1202"
	ErrCodeIllegalEntryPath = "EXTRACT_1203"
	ErrCodePersistFailed    = "EXTRACT_1204"

	// Load errors (1300-1399)
	ErrCodeDescriptorMissing   = "LOAD_1301"
	ErrCodeDescriptorInvalid   = "LOAD_1302"
	ErrCodeEntryNotResolvable  = "LOAD_1303"
	ErrCodeNoUsableConstructor = "LOAD_1304"
	ErrCodeInstantiation       = "LOAD_1305"
	ErrCodeComponentCreation   = "LOAD_1306"
	ErrCodeBindingConflict     = "LOAD_1307"
	ErrCodeUnitOpen            = "LOAD_1308"
	ErrCodeCatalogEntry        = "LOAD_1309"
	ErrCodeBindingMissing      = "LOAD_1310"
	ErrCodeDependencyCycle     = "LOAD_1311"
	ErrCodeProviderFailed      = "LOAD_1312"
	ErrCodeBindingType         = "LOAD_1313"
	ErrCodeLoadCancelled       = "LOAD_1314"

	// Wiring warnings (1400-1499)
	ErrCodeHookFailed = "WIRING_1401"

	// Lifecycle errors (1500-1599)
	ErrCodeServiceStart        = "LIFECYCLE_1501"
	ErrCodeServiceStop         = "LIFECYCLE_1502"
	ErrCodeServiceUnresolvable = "LIFECYCLE_1503"
	ErrCodeInvalidTransition   = "LIFECYCLE_1504"

	// Registry errors (1600-1699)
	ErrCodeModuleNotFound = "REGISTRY_1601"

	// Configuration errors (1700-1799)
	ErrCodeConfigNotFound        = "CONFIG_1701"
	ErrCodeConfigParseError      = "CONFIG_1702"
	ErrCodeConfigValidationError = "CONFIG_1703"
	ErrCodeConfigWatcherError    = "CONFIG_1704"

	// Transport errors (1800-1899)
	ErrCodeTransport       = "TRANSPORT_1801"
	ErrCodeCodec           = "TRANSPORT_1802"
	ErrCodeRemoteFailure   = "TRANSPORT_1803"
	ErrCodeNodeUnavailable = "TRANSPORT_1804"

	// Management pool errors (1900-1999)
	ErrCodePoolClosed   = "POOL_1901"
	ErrCodePoolRejected = "POOL_1902"

	// Audit errors (2000-2099)
	ErrCodeAuditFailed = "AUDIT_2001"
)

// ErrorKind classifies an error into the deploy failure taxonomy.
type ErrorKind string

const (
	KindInput      ErrorKind = "InputError"
	KindAccess     ErrorKind = "AccessError"
	KindExtraction ErrorKind = "ExtractionError"
	KindLoad       ErrorKind = "LoadError"
	KindWiring     ErrorKind = "WiringWarning"
	KindLifecycle  ErrorKind = "LifecycleError"
	KindRegistry   ErrorKind = "RegistryError"
	KindConfig     ErrorKind = "ConfigError"
	KindTransport  ErrorKind = "TransportError"
	KindPool       ErrorKind = "PoolError"
	KindUnknown    ErrorKind = "Unknown"
)

var kindPrefixes = map[string]ErrorKind{
	"INPUT":     KindInput,
	"ACCESS":    KindAccess,
	"EXTRACT":   KindExtraction,
	"LOAD":      KindLoad,
	"WIRING":    KindWiring,
	"LIFECYCLE": KindLifecycle,
	"REGISTRY":  KindRegistry,
	"CONFIG":    KindConfig,
	"TRANSPORT": KindTransport,
	"POOL":      KindPool,
}

// KindOf returns the taxonomy kind of err by inspecting the code of the
// outermost *errors.Error in its chain.
func KindOf(err error) ErrorKind {
	var goErr *errors.Error
	if !stderrors.As(err, &goErr) {
		return KindUnknown
	}
	prefix, _, _ := strings.Cut(string(goErr.Code), "_")
	if kind, ok := kindPrefixes[prefix]; ok {
		return kind
	}
	return KindUnknown
}

// HasCode reports whether the outermost *errors.Error in the chain of err
// carries code.
func HasCode(err error, code errors.ErrorCode) bool {
	var goErr *errors.Error
	if !stderrors.As(err, &goErr) {
		return false
	}
	return goErr.Code == code
}

// wrap attaches code to cause, or creates a fresh error when cause is nil.
func wrap(cause error, code errors.ErrorCode, message string) *errors.Error {
	if cause == nil {
		return errors.New(code, message)
	}
	return errors.Wrap(cause, code, message)
}

// Request validation error constructors

func NewMissingNameError() *errors.Error {
	return errors.New(ErrCodeMissingName, "Missing module name").
		WithUserMessage("A module name is required to deploy").
		WithSeverity("error")
}

func NewInvalidNameError(name, reason string) *errors.Error {
	return errors.New(ErrCodeInvalidName, "Invalid module name: "+reason).
		WithUserMessage("The module name contains characters that are not allowed").
		WithContext("provided_name", name).
		WithSeverity("error")
}

func NewMissingContentError(name string) *errors.Error {
	return errors.New(ErrCodeMissingContent, "No content in deploy request").
		WithUserMessage("Either content or a readable source must be supplied").
		WithContext("module", name).
		WithSeverity("error")
}

func NewDeployDisabledError() *errors.Error {
	return errors.New(ErrCodeDeployDisabled, "Deploy is disabled on this node").
		WithUserMessage("Module deployment is disabled by configuration").
		WithSeverity("error")
}

// Source access error constructors

func NewDomainNotAllowedError(locator, host string) *errors.Error {
	return errors.New(ErrCodeDomainNotAllowed, "Remote source domain not allowed").
		WithUserMessage("The source host is not in the deploy domain allow-list").
		WithContext("source", locator).
		WithContext("host", host).
		WithSeverity("error")
}

func NewSourceUnreadableError(locator string, cause error) *errors.Error {
	return wrap(cause, ErrCodeSourceUnreadable, "Can't read from source").
		WithUserMessage("The deploy source could not be read").
		WithContext("source", locator).
		WithSeverity("error")
}

func NewSourceNotFoundError(path string) *errors.Error {
	return errors.New(ErrCodeSourceNotFound, "Source not found").
		WithUserMessage("The package path does not exist").
		WithContext("path", path).
		WithSeverity("error")
}

func NewFetchFailedError(locator string, cause error) *errors.Error {
	return wrap(cause, ErrCodeFetchFailed, "Remote fetch failed").
		WithUserMessage("The remote package could not be downloaded").
		WithContext("source", locator).
		WithSeverity("error").
		AsRetryable()
}

// Extraction error constructors

func NewCorruptArchiveError(path string, cause error) *errors.Error {
	return wrap(cause, ErrCodeCorruptArchive, "Corrupt archive").
		WithUserMessage("The package archive could not be read").
		WithContext("archive", path).
		WithSeverity("error")
}

func NewExtractWriteError(path string, cause error) *errors.Error {
	return wrap(cause, ErrCodeExtractWrite, "Failed to write archive entry").
		WithUserMessage("Extraction failed while writing files").
		WithContext("target", path).
		WithSeverity("error")
}

func NewIllegalEntryPathError(archive, entry string) *errors.Error {
	return errors.New(ErrCodeIllegalEntryPath, "Archive entry escapes extraction root").
		WithUserMessage("The archive contains an illegal path").
		WithContext("archive", archive).
		WithContext("entry", entry).
		WithSeverity("error")
}

func NewPersistFailedError(path string, cause error) *errors.Error {
	return wrap(cause, ErrCodePersistFailed, "Failed to persist package").
		WithUserMessage("The package could not be written to the plugin directory").
		WithContext("path", path).
		WithSeverity("error")
}

// Load error constructors

func NewDescriptorMissingError(root string) *errors.Error {
	return errors.New(ErrCodeDescriptorMissing, "Descriptor missing").
		WithUserMessage("The bundle does not contain a plugin descriptor").
		WithContext("root", root).
		WithSeverity("error")
}

func NewDescriptorInvalidError(path, reason string, cause error) *errors.Error {
	return wrap(cause, ErrCodeDescriptorInvalid, "Invalid descriptor: "+reason).
		WithUserMessage("The plugin descriptor is invalid").
		WithContext("descriptor", path).
		WithSeverity("error")
}

func NewEntryNotResolvableError(entry string, units int) *errors.Error {
	return errors.New(ErrCodeEntryNotResolvable, "Entry type not resolvable").
		WithUserMessage("No loadable unit in the bundle provides the declared entry type").
		WithContext("entry", entry).
		WithContext("units_scanned", units).
		WithSeverity("error")
}

func NewNoUsableConstructorError(entry string) *errors.Error {
	return errors.New(ErrCodeNoUsableConstructor, "No constructor for entry type").
		WithUserMessage("The entry type has neither a settings nor a no-argument constructor").
		WithContext("entry", entry).
		WithSeverity("error")
}

func NewInstantiationError(entry string, cause error) *errors.Error {
	return wrap(cause, ErrCodeInstantiation, "Failed to instantiate entry type").
		WithUserMessage("The plugin could not be constructed").
		WithContext("entry", entry).
		WithSeverity("error")
}

func NewComponentCreationError(capability string, cause error) *errors.Error {
	return wrap(cause, ErrCodeComponentCreation, "Failed to create component").
		WithUserMessage("A declared component could not be constructed").
		WithContext("capability", capability).
		WithSeverity("error")
}

func NewBindingConflictError(key ServiceKey) *errors.Error {
	return errors.New(ErrCodeBindingConflict, "Service bound more than once").
		WithUserMessage("Two components of the module bind the same service").
		WithContext("service", string(key)).
		WithSeverity("error")
}

func NewUnitOpenError(path string, cause error) *errors.Error {
	return wrap(cause, ErrCodeUnitOpen, "Failed to open loadable unit").
		WithContext("unit", path).
		WithSeverity("warning")
}

func NewLoadCancelledError(path string, cause error) *errors.Error {
	return wrap(cause, ErrCodeLoadCancelled, "Bundle load cancelled").
		WithContext("path", path).
		WithSeverity("warning").
		AsRetryable()
}

func NewCatalogError(id, reason string) *errors.Error {
	return errors.New(ErrCodeCatalogEntry, "Invalid catalog entry: "+reason).
		WithUserMessage("The entry type cannot be registered in the host catalog").
		WithContext("entry", id).
		WithSeverity("error")
}

func NewBindingMissingError(scope string, key ServiceKey) *errors.Error {
	return errors.New(ErrCodeBindingMissing, "No binding for service").
		WithUserMessage("Neither the module nor the host binds the requested service").
		WithContext("extension_context", scope).
		WithContext("service", string(key)).
		WithSeverity("error")
}

func NewDependencyCycleError(key ServiceKey) *errors.Error {
	return errors.New(ErrCodeDependencyCycle, "Dependency cycle while resolving service").
		WithUserMessage("Service providers depend on each other in a cycle").
		WithContext("service", string(key)).
		WithSeverity("error")
}

func NewProviderFailedError(key ServiceKey, cause error) *errors.Error {
	return wrap(cause, ErrCodeProviderFailed, "Service provider failed").
		WithContext("service", string(key)).
		WithSeverity("error")
}

func NewBindingTypeError(key ServiceKey, got, want string) *errors.Error {
	return errors.New(ErrCodeBindingType, "Service has unexpected type").
		WithContext("service", string(key)).
		WithContext("got", got).
		WithContext("want", want).
		WithSeverity("error")
}

// Wiring warning constructors

func NewHookFailedError(capability string, cause error) *errors.Error {
	return wrap(cause, ErrCodeHookFailed, "Hook invocation failed").
		WithUserMessage("A module hook failed; wiring continued").
		WithContext("capability", capability).
		WithSeverity("warning")
}

// Lifecycle error constructors

func NewServiceStartError(module string, key ServiceKey, cause error) *errors.Error {
	return wrap(cause, ErrCodeServiceStart, "Service failed to start").
		WithUserMessage("A declared service of the module failed to start").
		WithContext("module", module).
		WithContext("service", string(key)).
		WithSeverity("error")
}

func NewServiceStopError(module string, cause error) *errors.Error {
	return wrap(cause, ErrCodeServiceStop, "Service failed to stop").
		WithUserMessage("One or more services of the module failed to stop").
		WithContext("module", module).
		WithSeverity("error")
}

func NewServiceUnresolvableError(module string, key ServiceKey, cause error) *errors.Error {
	return wrap(cause, ErrCodeServiceUnresolvable, "Declared service cannot be resolved").
		WithContext("module", module).
		WithContext("service", string(key)).
		WithSeverity("error")
}

func NewInvalidTransitionError(module string, from, to ModuleState) *errors.Error {
	return errors.New(ErrCodeInvalidTransition, "Invalid lifecycle transition").
		WithContext("module", module).
		WithContext("from", from.String()).
		WithContext("to", to.String()).
		WithSeverity("error")
}

// Registry error constructors

func NewModuleNotFoundError(name string) *errors.Error {
	return errors.New(ErrCodeModuleNotFound, "Module not found").
		WithUserMessage("No module is deployed under this name").
		WithContext("module", name).
		WithSeverity("error")
}

// Configuration error constructors

func NewConfigNotFoundError(path string) *errors.Error {
	return errors.New(ErrCodeConfigNotFound, "Configuration file not found").
		WithUserMessage("The configuration file could not be found").
		WithContext("config_path", path).
		WithSeverity("error")
}

func NewConfigParseError(path string, cause error) *errors.Error {
	return wrap(cause, ErrCodeConfigParseError, "Configuration parse error").
		WithUserMessage("Failed to parse configuration file").
		WithContext("config_path", path).
		WithSeverity("error")
}

func NewConfigValidationError(message string) *errors.Error {
	return errors.New(ErrCodeConfigValidationError, "Configuration validation error: "+message).
		WithUserMessage("Configuration validation failed").
		WithSeverity("error")
}

func NewConfigWatcherError(message string, cause error) *errors.Error {
	return wrap(cause, ErrCodeConfigWatcherError, "Configuration watcher error: "+message).
		WithUserMessage("Configuration monitoring failed").
		WithSeverity("error")
}

// Transport error constructors

func NewTransportError(node string, cause error) *errors.Error {
	return wrap(cause, ErrCodeTransport, "Node transport error").
		WithContext("node", node).
		WithSeverity("error").
		AsRetryable()
}

func NewCodecError(message string, cause error) *errors.Error {
	return wrap(cause, ErrCodeCodec, "Message codec error: "+message).
		WithSeverity("error")
}

// NewRemoteFailureError carries a failure reported by a remote node.
func NewRemoteFailureError(node, message string) *errors.Error {
	return errors.New(ErrCodeRemoteFailure, message).
		WithContext("node", node).
		WithSeverity("error")
}

// NewNodeUnavailableError reports a node skipped because its circuit is open.
func NewNodeUnavailableError(node string, retryAfter time.Duration) *errors.Error {
	return errors.New(ErrCodeNodeUnavailable, "Node circuit open").
		WithUserMessage("The node failed repeatedly and is temporarily skipped").
		WithContext("node", node).
		WithContext("retry_after", retryAfter.String()).
		WithSeverity("error").
		AsRetryable()
}

// Management pool error constructors

func NewPoolClosedError() *errors.Error {
	return errors.New(ErrCodePoolClosed, "Management pool is closed").
		WithUserMessage("The node is shutting down").
		WithSeverity("error")
}

func NewPoolRejectedError(cause error) *errors.Error {
	return wrap(cause, ErrCodePoolRejected, "Management task not admitted").
		WithSeverity("error").
		AsRetryable()
}

func NewAuditError(message string, cause error) *errors.Error {
	return wrap(cause, ErrCodeAuditFailed, "Audit trail error: "+message).
		WithSeverity("warning")
}
