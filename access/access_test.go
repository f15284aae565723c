package access

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMaskAndFormat(t *testing.T) {
	mode, perms, err := ParseMask("+csd-Rwx")
	require.NoError(t, err)
	require.Equal(t, Or, mode)
	require.True(t, perms.Has(PermRead))
	require.False(t, perms.Has(PermWrite))
	require.Equal(t, "csd-Rwx", perms.Format())

	mode, perms, err = ParseMask("&CSD-rwX")
	require.NoError(t, err)
	require.Equal(t, And, mode)
	require.True(t, perms.Has(PermCreate))
	require.True(t, perms.Has(PermSelect))
	require.True(t, perms.Has(PermDelete))
	require.True(t, perms.Has(PermExecute))
	require.Equal(t, "CSD-rwX", perms.Format())

	_, _, err = ParseMask("csd-rwx")
	require.Error(t, err)
	_, _, err = ParseMask("+cds-rwx")
	require.Error(t, err)
}

func TestOrAndComposition(t *testing.T) {
	_, read, err := ParseMask("+csd-Rwx")
	require.NoError(t, err)
	_, exec, err := ParseMask("+csd-rwX")
	require.NoError(t, err)
	_, keepExec, err := ParseMask("&csd-rwX")
	require.NoError(t, err)

	both := read.Or(exec)
	require.Equal(t, "csd-RwX", both.Format())

	masked := both.And(keepExec)
	require.Equal(t, "csd-rwX", masked.Format())

	// Or is idempotent.
	require.True(t, both.Or(exec).Equal(both))
}

func TestFullAndHasPermission(t *testing.T) {
	full := Full()
	require.Equal(t, "CSD-RWX", full.Format())

	a := Access{Kind: Owner}
	require.True(t, a.HasFull())
	require.True(t, a.HasPermission(PermDelete))
	require.True(t, a.HasPrivilege("anything"))

	e := Access{Kind: Enumerated, Permissions: NewPermissions().Set(PermRead)}
	require.False(t, e.HasFull())
	require.True(t, e.HasPermission(PermRead))
	require.False(t, e.HasPermission(PermWrite))
}
