package approuters

import (
	"github.com/gin-gonic/gin"

	"Meetpulse/internal/configuration"
)

func MeetingRouters(router *gin.Engine, container *configuration.Container) {
	meetingRoute := router.Group("/meetings/api")
	{
		meetingRoute.GET("/get-all-meetings", container.MeetingHandler.GetMeetings)
		meetingRoute.GET("/:meetingId", container.MeetingHandler.GetMeeting)
		meetingRoute.GET("/:meetingId/transcript", container.MeetingHandler.GetTranscript)
		meetingRoute.GET("/:meetingId/rtc-token", container.MeetingHandler.GetRTCToken)
		meetingRoute.POST("/:meetingId/recording", container.MeetingHandler.SetRecording)

		// polling-derived change feed, one SSE stream per meeting
		meetingRoute.GET("/:meetingId/stream", container.StreamHandler.Stream)
	}

	// query-parameterized variant kept for clients that cannot set path params
	router.GET("/meetings/stream", container.StreamHandler.Stream)
}
