package compatapi

import (
	"encoding/json"
	"net/http"

	"github.com/nextlevelbuilder/warpbridge/internal/models"
	"github.com/nextlevelbuilder/warpbridge/internal/openaiapi"
)

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	list := openaiapi.ModelList{Object: "list", Data: models.Catalog()}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}
