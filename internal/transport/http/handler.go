package http

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"gameday-service/internal/app"
	"gameday-service/internal/domain"
)

// API exposes the gameplay and admin use cases over JSON.
type API struct {
	service *app.GameService
}

func NewAPI(service *app.GameService) *API {
	return &API{service: service}
}

// Register mounts all routes on the mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/players", a.createPlayer)
	mux.HandleFunc("GET /api/players", a.listPlayers)
	mux.HandleFunc("PUT /api/players/{id}", a.updatePlayer)
	mux.HandleFunc("DELETE /api/players/{id}", a.deletePlayer)
	mux.HandleFunc("POST /api/players/{id}/adjustments", a.adjustScore)
	mux.HandleFunc("GET /api/players/{id}/purchases", a.listPurchases)

	mux.HandleFunc("POST /api/teams", a.createTeam)
	mux.HandleFunc("GET /api/teams", a.listTeams)
	mux.HandleFunc("PUT /api/teams/{id}", a.updateTeam)
	mux.HandleFunc("DELETE /api/teams/{id}", a.deleteTeam)

	mux.HandleFunc("POST /api/campaigns", a.createCampaign)
	mux.HandleFunc("GET /api/campaigns", a.listCampaigns)
	mux.HandleFunc("PUT /api/campaigns/{id}", a.updateCampaign)
	mux.HandleFunc("DELETE /api/campaigns/{id}", a.deleteCampaign)
	mux.HandleFunc("POST /api/campaigns/{id}/players", a.enrollPlayer)
	mux.HandleFunc("POST /api/campaigns/{id}/questions", a.createQuestion)
	mux.HandleFunc("GET /api/campaigns/{id}/questions", a.listQuestions)
	mux.HandleFunc("POST /api/campaigns/{id}/products", a.createProduct)
	mux.HandleFunc("GET /api/campaigns/{id}/products", a.listProducts)
	mux.HandleFunc("GET /api/campaigns/{id}/scoreboard", a.scoreboard)

	mux.HandleFunc("PUT /api/questions/{id}", a.updateQuestion)
	mux.HandleFunc("DELETE /api/questions/{id}", a.deleteQuestion)

	mux.HandleFunc("GET /api/play/questions", a.visibleQuestions)
	mux.HandleFunc("POST /api/play/answers", a.submitAnswer)
	mux.HandleFunc("POST /api/store/purchases", a.purchaseProduct)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsConflict(err):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case domain.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case domain.IsInvalid(err):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		log.Printf("internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil
}

func queryID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return id, err == nil
}

// parseDate accepts RFC 3339 timestamps or plain YYYY-MM-DD dates.
func parseDate(raw string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func (a *API) createPlayer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		TeamID *int64 `json:"teamId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid payload")
		return
	}
	player, err := a.service.CreatePlayer(r.Context(), req.Name, req.TeamID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, player)
}

func (a *API) listPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := a.service.Players(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, players)
}

func (a *API) updatePlayer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid player id")
		return
	}
	var req struct {
		Name   string `json:"name"`
		TeamID *int64 `json:"teamId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid payload")
		return
	}
	player, err := a.service.UpdatePlayer(r.Context(), id, req.Name, req.TeamID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, player)
}

func (a *API) deletePlayer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid player id")
		return
	}
	if err := a.service.DeletePlayer(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) adjustScore(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid player id")
		return
	}
	var req struct {
		CampaignID int64  `json:"campaignId"`
		Points     int    `json:"points"`
		Reason     string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid payload")
		return
	}
	adj, err := a.service.AdjustScore(r.Context(), id, req.CampaignID, req.Points, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, adj)
}

func (a *API) listPurchases(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid player id")
		return
	}
	purchases, err := a.service.PlayerPurchases(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, purchases)
}

func (a *API) createTeam(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid payload")
		return
	}
	team, err := a.service.CreateTeam(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, team)
}

func (a *API) updateTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid team id")
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid payload")
		return
	}
	team, err := a.service.UpdateTeam(r.Context(), id, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (a *API) deleteTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid team id")
		return
	}
	if err := a.service.DeleteTeam(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := a.service.Teams(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, teams)
}

func (a *API) createCampaign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		Status    string `json:"status"`
		StartDate string `json:"startDate"`
		EndDate   string `json:"endDate"`
		Timezone  string `json:"timezone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid payload")
		return
	}
	start, ok := parseDate(req.StartDate)
	if !ok {
		badRequest(w, "invalid startDate")
		return
	}
	end, ok := parseDate(req.EndDate)
	if !ok {
		badRequest(w, "invalid endDate")
		return
	}
	campaign, err := a.service.CreateCampaign(r.Context(), domain.Campaign{
		Name:      req.Name,
		Status:    domain.CampaignStatus(req.Status),
		StartDate: start,
		EndDate:   end,
		Timezone:  req.Timezone,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (a *API) updateCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid campaign id")
		return
	}
	var req struct {
		Name      string `json:"name"`
		Status    string `json:"status"`
		StartDate string `json:"startDate"`
		EndDate   string `json:"endDate"`
		Timezone  string `json:"timezone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid payload")
		return
	}
	start, ok := parseDate(req.StartDate)
	if !ok {
		badRequest(w, "invalid startDate")
		return
	}
	end, ok := parseDate(req.EndDate)
	if !ok {
		badRequest(w, "invalid endDate")
		return
	}
	campaign, err := a.service.UpdateCampaign(r.Context(), domain.Campaign{
		ID:        id,
		Name:      req.Name,
		Status:    domain.CampaignStatus(req.Status),
		StartDate: start,
		EndDate:   end,
		Timezone:  req.Timezone,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (a *API) deleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid campaign id")
		return
	}
	if err := a.service.DeleteCampaign(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := a.service.Campaigns(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaigns)
}

func (a *API) enrollPlayer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid campaign id")
		return
	}
	var req struct {
		PlayerID int64 `json:"playerId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid payload")
		return
	}
	if err := a.service.EnrollPlayer(r.Context(), id, req.PlayerID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) createQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid campaign id")
		return
	}
	var req struct {
		Text                 string     `json:"text"`
		Choices              []string   `json:"choices"`
		Answer               int        `json:"answer"`
		PointsOnTime         int        `json:"pointsOnTime"`
		PointsLate           int        `json:"pointsLate"`
		ScheduleTime         string     `json:"scheduleTime"`
		DeadlineTime         string     `json:"deadlineTime"`
		IsSpecial            bool       `json:"isSpecial"`
		SpecialStartAt       *time.Time `json:"specialStartAt"`
		SpecialWindowMinutes int        `json:"specialWindowMinutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid payload")
		return
	}
	question, err := a.service.CreateQuestion(r.Context(), domain.Question{
		CampaignID:           id,
		Text:                 req.Text,
		Choices:              req.Choices,
		Answer:               req.Answer,
		PointsOnTime:         req.PointsOnTime,
		PointsLate:           req.PointsLate,
		ScheduleTime:         req.ScheduleTime,
		DeadlineTime:         req.DeadlineTime,
		IsSpecial:            req.IsSpecial,
		SpecialStartAt:       req.SpecialStartAt,
		SpecialWindowMinutes: req.SpecialWindowMinutes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, question)
}

func (a *API) updateQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid question id")
		return
	}
	var req struct {
		Text                 string     `json:"text"`
		Choices              []string   `json:"choices"`
		Answer               int        `json:"answer"`
		PointsOnTime         int        `json:"pointsOnTime"`
		PointsLate           int        `json:"pointsLate"`
		ScheduleTime         string     `json:"scheduleTime"`
		DeadlineTime         string     `json:"deadlineTime"`
		IsSpecial            bool       `json:"isSpecial"`
		SpecialStartAt       *time.Time `json:"specialStartAt"`
		SpecialWindowMinutes int        `json:"specialWindowMinutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid payload")
		return
	}
	question, err := a.service.UpdateQuestion(r.Context(), domain.Question{
		ID:                   id,
		Text:                 req.Text,
		Choices:              req.Choices,
		Answer:               req.Answer,
		PointsOnTime:         req.PointsOnTime,
		PointsLate:           req.PointsLate,
		ScheduleTime:         req.ScheduleTime,
		DeadlineTime:         req.DeadlineTime,
		IsSpecial:            req.IsSpecial,
		SpecialStartAt:       req.SpecialStartAt,
		SpecialWindowMinutes: req.SpecialWindowMinutes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, question)
}

func (a *API) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid question id")
		return
	}
	if err := a.service.DeleteQuestion(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listQuestions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid campaign id")
		return
	}
	questions, err := a.service.CampaignQuestions(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (a *API) createProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid campaign id")
		return
	}
	var req struct {
		Name             string     `json:"name"`
		Description      string     `json:"description"`
		PriceInGameCoins int        `json:"priceInGameCoins"`
		Quantity         int        `json:"quantity"`
		AvailableFrom    *time.Time `json:"availableFrom"`
		AvailableUntil   *time.Time `json:"availableUntil"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid payload")
		return
	}
	product, err := a.service.CreateProduct(r.Context(), domain.Product{
		CampaignID:       id,
		Name:             req.Name,
		Description:      req.Description,
		PriceInGameCoins: req.PriceInGameCoins,
		Quantity:         req.Quantity,
		AvailableFrom:    req.AvailableFrom,
		AvailableUntil:   req.AvailableUntil,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (a *API) listProducts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid campaign id")
		return
	}
	products, err := a.service.Products(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (a *API) scoreboard(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid campaign id")
		return
	}
	sb, err := a.service.Scoreboard(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sb)
}

// playQuestion is the player-facing view of a question: the correct answer
// index stays server-side.
type playQuestion struct {
	ID                   int64      `json:"id"`
	CampaignID           int64      `json:"campaignId"`
	Text                 string     `json:"text"`
	Choices              []string   `json:"choices"`
	PointsOnTime         int        `json:"pointsOnTime"`
	PointsLate           int        `json:"pointsLate"`
	DayIndex             int        `json:"dayIndex"`
	ScheduleTime         string     `json:"scheduleTime"`
	DeadlineTime         string     `json:"deadlineTime"`
	IsSpecial            bool       `json:"isSpecial"`
	SpecialStartAt       *time.Time `json:"specialStartAt,omitempty"`
	SpecialWindowMinutes int        `json:"specialWindowMinutes,omitempty"`
}

func toPlayQuestions(questions []domain.Question) []playQuestion {
	out := make([]playQuestion, 0, len(questions))
	for _, q := range questions {
		out = append(out, playQuestion{
			ID:                   q.ID,
			CampaignID:           q.CampaignID,
			Text:                 q.Text,
			Choices:              q.Choices,
			PointsOnTime:         q.PointsOnTime,
			PointsLate:           q.PointsLate,
			DayIndex:             q.DayIndex,
			ScheduleTime:         q.ScheduleTime,
			DeadlineTime:         q.DeadlineTime,
			IsSpecial:            q.IsSpecial,
			SpecialStartAt:       q.SpecialStartAt,
			SpecialWindowMinutes: q.SpecialWindowMinutes,
		})
	}
	return out
}

func (a *API) visibleQuestions(w http.ResponseWriter, r *http.Request) {
	playerID, ok := queryID(r, "playerId")
	if !ok {
		badRequest(w, "missing playerId")
		return
	}
	campaignID, ok := queryID(r, "campaignId")
	if !ok {
		badRequest(w, "missing campaignId")
		return
	}
	questions, err := a.service.GetVisibleQuestions(r.Context(), playerID, campaignID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlayQuestions(questions))
}

func (a *API) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID       int64 `json:"playerId"`
		QuestionID     int64 `json:"questionId"`
		CampaignID     int64 `json:"campaignId"`
		SelectedAnswer int   `json:"selectedAnswer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid payload")
		return
	}
	answer, err := a.service.SubmitAnswer(r.Context(), req.PlayerID, req.QuestionID, req.CampaignID, req.SelectedAnswer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, answer)
}

func (a *API) purchaseProduct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID   int64 `json:"playerId"`
		ProductID  int64 `json:"productId"`
		CampaignID int64 `json:"campaignId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid payload")
		return
	}
	purchase, err := a.service.PurchaseProduct(r.Context(), req.PlayerID, req.ProductID, req.CampaignID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, purchase)
}
