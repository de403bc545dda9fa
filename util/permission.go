//go:build !windows

package util

// EnforcePermission is a no-op on unix, the temp file mode already limits access to the owner
func EnforcePermission(string) error {
	return nil
}
