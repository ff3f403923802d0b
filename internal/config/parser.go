package config

import (
	"context"
	"fmt"

	"github.com/ZebulonRouseFrantzich/heykeploy/internal/platform"
	lua "github.com/yuin/gopher-lua"
)

// Parser evaluates Lua configs with platform detection.
type Parser struct {
	detector platform.Detector
}

// NewParser creates a new config parser with the given platform detector.
// A nil detector leaves the "platform" global undefined.
func NewParser(detector platform.Detector) *Parser {
	return &Parser{detector: detector}
}

// ParseError represents a config parsing error with friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// ParseString evaluates luaCode and overlays the "heykeploy" table onto cfg.
// Keys absent from the table leave cfg untouched.
func (p *Parser) ParseString(ctx context.Context, luaCode string, cfg *Config) error {
	L := newSandboxedVM()
	defer L.Close()
	L.SetContext(ctx)

	if p.detector != nil {
		info, err := p.detector.Detect(ctx)
		if err != nil {
			return fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, info); err != nil {
			return fmt.Errorf("inject platform table: %w", err)
		}
	}

	if err := L.DoString(luaCode); err != nil {
		return &ParseError{
			Message: "Lua error",
			Detail:  err.Error(),
		}
	}

	return extractConfig(L, cfg)
}

// extractConfig reads the global "heykeploy" table into cfg.
func extractConfig(L *lua.LState, cfg *Config) error {
	global := L.GetGlobal(luaGlobal)
	table, ok := global.(*lua.LTable)
	if !ok {
		return &ParseError{
			Message: fmt.Sprintf("missing or invalid '%s' table", luaGlobal),
			Detail:  fmt.Sprintf("expected table, got %s", global.Type()),
		}
	}

	luaString(table, luaFieldInstallDir, &cfg.InstallDir)

	if t, ok := table.RawGetString(luaFieldRelease).(*lua.LTable); ok {
		r := &cfg.Release
		luaString(t, "url", &r.URL)
		luaString(t, "checksum_url", &r.ChecksumURL)
		luaString(t, "signature_url", &r.SignatureURL)
		luaString(t, "keyring", &r.Keyring)
		luaString(t, "bundle_url", &r.BundleURL)
		luaString(t, "cert_identity", &r.CertIdentity)
		luaString(t, "cert_issuer", &r.CertIssuer)
		luaString(t, "trusted_root", &r.TrustedRoot)
		luaString(t, "timeout", &r.Timeout)
		luaInt(t, "retries", &r.Retries)
		luaBool(t, "allow_insecure", &r.AllowInsecure)
		luaBool(t, "skip_smoke_test", &r.SkipSmokeTest)
		luaBool(t, "skip_checksum", &r.SkipChecksum)
	}

	if t, ok := table.RawGetString(luaFieldContainer).(*lua.LTable); ok {
		luaString(t, "runtime", &cfg.Container.Runtime)
		luaString(t, "image", &cfg.Container.Image)
	}

	if t, ok := table.RawGetString(luaFieldRecord).(*lua.LTable); ok {
		luaStrings(t, "extra_args", &cfg.Record.ExtraArgs)
		luaString(t, "work_dir", &cfg.Record.WorkDir)
		luaString(t, "log_dir", &cfg.Record.LogDir)
		luaString(t, "shutdown_grace", &cfg.Record.ShutdownGrace)
	}

	if t, ok := table.RawGetString(luaFieldLog).(*lua.LTable); ok {
		luaString(t, "level", &cfg.Log.Level)
		luaString(t, "file", &cfg.Log.File)
	}

	if t, ok := table.RawGetString(luaFieldBridge).(*lua.LTable); ok {
		luaString(t, "listen", &cfg.Bridge.Listen)
	}

	return nil
}

// luaString sets *dst when t[key] is a string. nil values (e.g. from
// platform.when) leave *dst unchanged.
func luaString(t *lua.LTable, key string, dst *string) {
	if v, ok := t.RawGetString(key).(lua.LString); ok {
		*dst = string(v)
	}
}

func luaBool(t *lua.LTable, key string, dst *bool) {
	if v, ok := t.RawGetString(key).(lua.LBool); ok {
		*dst = bool(v)
	}
}

func luaInt(t *lua.LTable, key string, dst *int) {
	if v, ok := t.RawGetString(key).(lua.LNumber); ok {
		*dst = int(v)
	}
}

// luaStrings reads an array of strings, skipping nil and non-string entries.
func luaStrings(t *lua.LTable, key string, dst *[]string) {
	arr, ok := t.RawGetString(key).(*lua.LTable)
	if !ok {
		return
	}
	out := make([]string, 0, arr.Len())
	arr.ForEach(func(_, value lua.LValue) {
		if s, ok := value.(lua.LString); ok {
			out = append(out, string(s))
		}
	})
	*dst = out
}
