// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package models

import "strings"

// EndpointClass is the sensitivity class of an endpoint, used by the
// adaptive policy layer to cap request rates and by detectors to decide
// which checks apply.
type EndpointClass string

const (
	EndpointLogin    EndpointClass = "login"
	EndpointAdmin    EndpointClass = "admin"
	EndpointDownload EndpointClass = "download"
	EndpointSearch   EndpointClass = "search"
	EndpointAPI      EndpointClass = "api"
	EndpointBrowse   EndpointClass = "browse"
)

// ClassifyPath maps a request path to its sensitivity class.
// Order matters: login and admin prefixes shadow the generic /api class.
func ClassifyPath(path string) EndpointClass {
	p := strings.ToLower(path)
	switch {
	case strings.Contains(p, "/login") || strings.Contains(p, "/auth"):
		return EndpointLogin
	case strings.Contains(p, "/admin"):
		return EndpointAdmin
	case strings.Contains(p, "/download") || strings.Contains(p, "/export") || strings.Contains(p, "/backup"):
		return EndpointDownload
	case strings.Contains(p, "/search"):
		return EndpointSearch
	case strings.HasPrefix(p, "/api/"):
		return EndpointAPI
	default:
		return EndpointBrowse
	}
}
