// Package api contains the HTTP surface of the roundtable service.
//
// # API Overview
//
// The service exposes one perpetual conversation:
//   - GET    /api/v1/conversation        current state (created on first read)
//   - DELETE /api/v1/conversation        archive then reset (admin)
//   - POST   /api/v1/conversation/turn   advance one turn
//   - GET    /api/v1/conversation/feed   websocket feed of new messages
//   - GET    /api/v1/archives            newest archive summaries
//   - POST   /api/v1/archives            manual snapshot
//   - GET    /api/v1/archives/{id}       one archive record
//   - GET    /api/v1/stats               per persona counters and derived values
//   - GET    /api/v1/context             external context entries
//   - POST   /api/v1/context             add a context entry (admin)
//   - POST   /api/v1/admin/wipe          hard wipe (admin)
//
// # Authentication
//
// When API keys are configured every /api/ route requires the X-API-Key header:
//
//	X-API-Key: your-api-key
//
// Admin routes additionally require a bearer JWT carrying the admin role
// when server.admin_jwt.secret is set.
//
// # Response Envelope
//
// Every JSON response has the shape
//
//	{"success": true, "data": {...}, "timestamp": "..."}
//	{"success": false, "error": {"code": "NOT_FOUND", "message": "..."}, "timestamp": "..."}
//
// Handlers live in package api/handlers.
package api
