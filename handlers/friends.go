// handlers/friend_routes.go
package handlers

import (
	"game-library-system/middleware"
	"game-library-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupFriendRoutes(app *fiber.App, friendService *services.FriendService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Get("/friends", friendService.HandleList)
	secured.Post("/friends", friendService.HandleAdd)
	secured.Post("/friends/:id/accept", friendService.HandleAccept)
	secured.Post("/friends/:id/reject", friendService.HandleReject)
	secured.Delete("/friends/:id", friendService.HandleRemove)
}
