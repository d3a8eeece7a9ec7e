package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/hyperion/internal/userdeletion"
)

type deletionCheckResponse struct {
	CanDelete bool                  `json:"can_delete"`
	Reasons   []userdeletion.Reason `json:"reasons"`
}

// DeletionCheck lists what still prevents the caller's account from being
// deleted.
func (s *Server) DeletionCheck(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	reasons, err := s.deletion.Check(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, deletionCheckResponse{
		CanDelete: len(reasons) == 0,
		Reasons:   reasons,
	})
}
