/*
Copyright © 2024 paul <paul@denknerd.org>
*/
package main

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/offprint/confluence-export/confluence"
)

// buildCredential picks an auth method from the flags, most explicit first:
// an explicit cookie file, then token auth (basic if a username is set,
// bearer otherwise), then browser cookie exports next to the config file.
func buildCredential() (confluence.Credential, error) {
	if CookieFile != "" {
		session, err := confluence.SessionFromCookieFile(CookieFile, siteHost())
		if err != nil {
			return nil, fmt.Errorf("cmd: couldn't load cookie file %s: %w", CookieFile, err)
		}
		return session, nil
	}

	if len(AuthTokenCmd) > 0 {
		token, err := runTokenCmd()
		if err != nil {
			return nil, err
		}
		if AuthUsername != "" {
			return confluence.BasicAuth{Username: AuthUsername, Token: token}, nil
		}
		return confluence.BearerToken{Token: token}, nil
	}

	session, file, err := confluence.LoadSession(siteHost(), confluence.DefaultCookieFiles(filepath.Dir(Config)))
	if err != nil {
		return nil, fmt.Errorf("cmd: no --cookie-file or --auth-token-cmd given, and no browser cookie export found: %w", err)
	}
	debugLog("Using browser cookie export %s\n", file)
	return session, nil
}

func runTokenCmd() (string, error) {
	tokenCmdOutput, err := exec.Command(AuthTokenCmd[0], AuthTokenCmd[1:]...).Output()
	if err != nil {
		return "", fmt.Errorf("cmd: couldn't execute auth-token-cmd '%v': %w", AuthTokenCmd, err)
	}

	token := strings.Split(string(tokenCmdOutput), "\n")[0]
	if token == "" {
		return "", fmt.Errorf("cmd: auth-token-cmd '%v' produced no token", AuthTokenCmd)
	}
	return token, nil
}

func siteHost() string {
	base, err := confluence.SiteBaseURL(Site)
	if err != nil {
		return Site
	}
	return base.Host
}
