package router

import (
	"net/http"

	"github.com/deppfellow/trackr/internal/handler"
	"github.com/deppfellow/trackr/internal/middleware"
)

// registerRegionRoutes mounts everything that reads or writes event data.
func (r *routes) registerRegionRoutes() {
	h := r.h

	issues := r.organization("/issues", middleware.SiloRegion, issueLimits)
	issues.PUT("/", handler.Handle(h.Issue.Handler, h.Issue.UpdateIssues, http.StatusOK, &handler.UpdateIssuesRequest{}))
	issues.POST("/merge/", handler.Handle(h.Issue.Handler, h.Issue.MergeIssues, http.StatusOK, &handler.MergeIssuesRequest{}))
	issues.GET("/:issue_id/", handler.HandleRedirect(h.Issue.Handler, h.Issue.GetIssue, &handler.IssueRequest{}))
	issues.GET("/:issue_id/events/", handler.Handle(h.Issue.Handler, h.Issue.ListEvents, http.StatusOK, &handler.IssueEventsRequest{}))

	events := r.ingest("/events", middleware.SiloRegion, eventLimits)
	events.POST("/", handler.Handle(h.Event.Handler, h.Event.Store, http.StatusOK, &handler.StoreEventRequest{}))

	plugins := r.project("/plugins/amazon-sqs", middleware.SiloRegion, pluginLimits)
	plugins.GET("/", handler.Handle(h.Plugin.Handler, h.Plugin.GetSQS, http.StatusOK, &handler.EmptyRequest{}))
	plugins.PUT("/", handler.Handle(h.Plugin.Handler, h.Plugin.ConfigureSQS, http.StatusOK, &handler.ConfigureSQSRequest{}))
	plugins.DELETE("/", handler.HandleNoContent(h.Plugin.Handler, h.Plugin.DisableSQS, http.StatusNoContent, &handler.EmptyRequest{}))

	repos := r.organization("/repos", middleware.SiloRegion, nil)
	repos.GET("/", handler.Handle(h.SourceCode.Handler, h.SourceCode.ListRepositories, http.StatusOK, &handler.ListRepositoriesRequest{}))
	repos.POST("/", handler.Handle(h.SourceCode.Handler, h.SourceCode.CreateRepository, http.StatusCreated, &handler.CreateRepositoryRequest{}))
	repos.DELETE("/:id/", handler.HandleNoContent(h.SourceCode.Handler, h.SourceCode.DeleteRepository, http.StatusAccepted, &handler.IDRequest{}))
	repos.GET("/:id/commits/", handler.Handle(h.SourceCode.Handler, h.SourceCode.ListCommits, http.StatusOK, &handler.ListCommitsRequest{}))
	repos.POST("/:id/commits/", handler.HandleNoContent(h.SourceCode.Handler, h.SourceCode.FetchCommits, http.StatusAccepted, &handler.FetchCommitsRequest{}))

	searches := r.organization("/searches", middleware.SiloRegion, nil)
	searches.GET("/", handler.Handle(h.SavedSearch.Handler, h.SavedSearch.List, http.StatusOK, &handler.SearchTypeRequest{}))
	searches.POST("/", handler.Handle(h.SavedSearch.Handler, h.SavedSearch.Create, http.StatusCreated, &handler.CreateSearchRequest{}))
	searches.DELETE("/:id/", handler.HandleNoContent(h.SavedSearch.Handler, h.SavedSearch.Delete, http.StatusNoContent, &handler.IDRequest{}))

	pinned := r.organization("/pinned-searches", middleware.SiloRegion, nil)
	pinned.PUT("/", handler.Handle(h.SavedSearch.Handler, h.SavedSearch.Pin, http.StatusOK, &handler.PinSearchRequest{}))
	pinned.DELETE("/", handler.HandleNoContent(h.SavedSearch.Handler, h.SavedSearch.Unpin, http.StatusNoContent, &handler.SearchTypeRequest{}))

	onboarding := r.organization("/onboarding-tasks", middleware.SiloRegion, nil)
	onboarding.GET("/", handler.Handle(h.Onboarding.Handler, h.Onboarding.List, http.StatusOK, &handler.EmptyRequest{}))
	onboarding.PUT("/", handler.HandleNoContent(h.Onboarding.Handler, h.Onboarding.Update, http.StatusNoContent, &handler.UpdateOnboardingRequest{}))

	github := r.public("/extensions/github", middleware.SiloRegion, webhookLimits)
	github.POST("/webhook/", h.Webhook.GitHub)

	bitbucket := r.public("/extensions/bitbucket/organizations/:org", middleware.SiloRegion, webhookLimits)
	bitbucket.POST("/webhook/", h.Webhook.Bitbucket)

	vsts := r.public("/extensions/vsts", middleware.SiloRegion, webhookLimits)
	vsts.POST("/webhook/", h.Webhook.VSTS)
}
