package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_NoFileYieldsBuiltins(t *testing.T) {
	s, err := Load("", nil)
	require.NoError(t, err)

	for _, name := range []string{"conservative", "safe_development", "pm_orchestrator", "autonomous_agent"} {
		_, err := s.Resolve(name)
		assert.NoError(t, err, name)
	}
}

func TestLoad_MissingFileYieldsBuiltins(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.NoError(t, err)
	assert.Len(t, s.Presets(), 4)
}

func TestStore_ResolveUnknown(t *testing.T) {
	s, err := Load("", nil)
	require.NoError(t, err)

	_, err = s.Resolve("yolo")
	require.ErrorIs(t, err, ErrUnknownPreset)
}

func TestLoad_CustomPreset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	doc := `
presets:
  ci_runner:
    risk: low
    check_interval: 5s
    response_delay: 250ms
    categories:
      file_operation: allow
      command_execution: allow
      git_operation: deny
      package_management: deny
      general_confirmation: allow
      continue_operation: allow
      dangerous_operation: deny
denylist:
  - rollout\s+restart
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	s, err := Load(path, nil)
	require.NoError(t, err)

	p, err := s.Resolve("ci_runner")
	require.NoError(t, err)
	assert.Equal(t, TierLow, p.Tier())
	assert.Equal(t, 5*time.Second, p.CheckInterval())
	assert.Equal(t, 250*time.Millisecond, p.ResponseDelay())
	assert.Equal(t, Allow, p.Action(CategoryCommandExecution))

	_, _, ok := s.Denylist().Match("kubectl rollout restart deploy/api")
	assert.True(t, ok)
}

func TestLoad_IncompleteCustomPresetRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	doc := `
presets:
  sloppy:
    risk: low
    categories:
      file_operation: allow
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	_, err := Load(path, nil)
	require.ErrorIs(t, err, ErrInvalidPreset)
}

func TestLoad_CustomPresetCannotAllowDangerous(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	doc := `
presets:
  reckless:
    risk: medium
    categories:
      file_operation: allow
      command_execution: allow
      git_operation: allow
      package_management: allow
      general_confirmation: allow
      continue_operation: allow
      dangerous_operation: allow
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	_, err := Load(path, nil)
	require.ErrorIs(t, err, ErrInvalidPreset)
}

func TestLoad_ExtraDenyFromConfig(t *testing.T) {
	s, err := Load("", []string{`terraform\s+apply`})
	require.NoError(t, err)

	label, matched, ok := s.Denylist().Match("About to run terraform apply, proceed? (y/n)")
	require.True(t, ok)
	assert.Contains(t, label, "configured pattern")
	assert.Equal(t, "terraform apply", matched)
}

func TestLoad_BadDenyPattern(t *testing.T) {
	_, err := Load("", []string{`broken(`})
	assert.Error(t, err)
}

func TestStore_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("presets: {}\n"), 0o644))

	s, err := Load(path, nil)
	require.NoError(t, err)
	assert.Len(t, s.Presets(), 4)

	doc := `
presets:
  night_shift:
    risk: very-low
    categories:
      file_operation: deny
      command_execution: deny
      git_operation: deny
      package_management: deny
      general_confirmation: allow
      continue_operation: allow
      dangerous_operation: deny
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	require.NoError(t, s.Reload())

	p, err := s.Resolve("night_shift")
	require.NoError(t, err)
	assert.Equal(t, TierVeryLow, p.Tier())
}

func TestStore_ReloadKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("presets: {}\n"), 0o644))

	s, err := Load(path, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("presets: [broken\n"), 0o644))
	require.Error(t, s.Reload())

	// The previous set is still live.
	_, err = s.Resolve("conservative")
	assert.NoError(t, err)
}

func TestStore_PresetsSortedByTier(t *testing.T) {
	s, err := Load("", nil)
	require.NoError(t, err)

	presets := s.Presets()
	require.Len(t, presets, 4)
	assert.Equal(t, "conservative", presets[0].Name())
	assert.Equal(t, "autonomous_agent", presets[3].Name())
}

func TestDenylist_Defaults(t *testing.T) {
	d := DefaultDenylist()

	tests := []struct {
		text string
		want bool
	}{
		{"Execute this command? rm -rf /tmp/build", true},
		{"Run command? git push --force origin feature", true},
		{"Run this script? echo ok && git reset --hard HEAD~3", true},
		{"Apply these changes? deploy to production", true},
		{"DROP TABLE users", true},
		{"Apply these changes? 1. Yes 2. No", false},
		{"Do you want to continue?", false},
	}
	for _, tt := range tests {
		_, _, ok := d.Match(tt.text)
		assert.Equal(t, tt.want, ok, tt.text)
	}
}
