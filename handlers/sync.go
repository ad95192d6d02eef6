// handlers/sync_routes.go
package handlers

import (
	"game-library-system/middleware"
	"game-library-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupSyncRoutes(app *fiber.App, syncService *services.SyncService) {
	// 🔐 All sync routes act on behalf of a user — user context required.
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/sync/:provider", syncService.HandleStartSync)
	secured.Post("/library/refresh", syncService.HandleRefresh)
	secured.Get("/library", syncService.HandleLibrary)
}
