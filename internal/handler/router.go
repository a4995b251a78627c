package handler

import (
	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	Messages *MessageHandler
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/messages", deps.Messages.Post)
	api.GET("/chats/:chatId/messages/:messageId/answer", deps.Messages.Answer)
}
