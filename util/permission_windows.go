package util

import (
	"fmt"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/windows"
)

const restrictedSecurityInfo = windows.OWNER_SECURITY_INFORMATION |
	windows.GROUP_SECURITY_INFORMATION |
	windows.DACL_SECURITY_INFORMATION |
	windows.PROTECTED_DACL_SECURITY_INFORMATION

// EnforcePermission replaces the DACL of the directory holding file so that
// only the current user and the Administrators group can access it
func EnforcePermission(file string) error {
	owner, group, err := tokenOwner()
	if err != nil {
		return fmt.Errorf("read process token: %w", err)
	}

	admins, err := windows.CreateWellKnownSid(windows.WinBuiltinAdministratorsSid)
	if err != nil {
		return fmt.Errorf("administrators sid: %w", err)
	}

	dacl, err := windows.ACLFromEntries([]windows.EXPLICIT_ACCESS{
		fullControl(owner, windows.TRUSTEE_IS_USER),
		fullControl(admins, windows.TRUSTEE_IS_WELL_KNOWN_GROUP),
	}, nil)
	if err != nil {
		return fmt.Errorf("build acl: %w", err)
	}

	dir := filepath.Dir(file)
	if err := windows.SetNamedSecurityInfo(dir, windows.SE_FILE_OBJECT, restrictedSecurityInfo, owner, group, dacl, nil); err != nil {
		return fmt.Errorf("set security info on %s: %w", dir, err)
	}
	return nil
}

func fullControl(sid *windows.SID, trusteeType windows.TRUSTEE_TYPE) windows.EXPLICIT_ACCESS {
	return windows.EXPLICIT_ACCESS{
		AccessPermissions: windows.GENERIC_ALL,
		AccessMode:        windows.SET_ACCESS,
		Inheritance:       windows.SUB_CONTAINERS_AND_OBJECTS_INHERIT,
		Trustee: windows.TRUSTEE{
			MultipleTrusteeOperation: windows.NO_MULTIPLE_TRUSTEE,
			TrusteeForm:              windows.TRUSTEE_IS_SID,
			TrusteeType:              trusteeType,
			TrusteeValue:             windows.TrusteeValueFromSID(sid),
		},
	}
}

// tokenOwner returns the user and primary group of the running process
func tokenOwner() (*windows.SID, *windows.SID, error) {
	var token windows.Token
	if err := windows.OpenProcessToken(windows.CurrentProcess(), windows.TOKEN_QUERY, &token); err != nil {
		return nil, nil, err
	}
	defer func() {
		if err := token.Close(); err != nil {
			log.Warnf("failed to close process token: %v", err)
		}
	}()

	user, err := token.GetTokenUser()
	if err != nil {
		return nil, nil, err
	}
	group, err := token.GetTokenPrimaryGroup()
	if err != nil {
		return nil, nil, err
	}
	return user.User.Sid, group.PrimaryGroup, nil
}
