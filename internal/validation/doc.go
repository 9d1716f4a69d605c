// Velomap - Live Bike-Share Map State Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velomap

// Package validation wraps go-playground/validator v10 with a singleton
// instance, custom tags and API-friendly error messages.
//
// Custom tags:
//
//	entitykind  stations or bicycles (singular forms and any case accepted)
//	wsurl       absolute ws:// or wss:// URL
//
// Field names in errors come from the koanf, json or query struct tag, so a
// configuration error reads "stations.url is required" and a bad query
// parameter reads "radius_km must be ...".
//
// Example:
//
//	type NearbyRequest struct {
//	    Lat    float64 `query:"lat" validate:"latitude"`
//	    Lng    float64 `query:"lng" validate:"longitude"`
//	    Radius float64 `query:"radius_km" validate:"gt=0,lte=50"`
//	}
//
//	if err := validation.ValidateStruct(&req); err != nil {
//	    apiErr := err.ToAPIError()
//	    respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
//	}
package validation
