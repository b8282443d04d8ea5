package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.ResolveTargetsActivity)
	w.RegisterActivity(a.UpdateJobStatusActivity)
	w.RegisterActivity(a.FetchModuleContentActivity)
	w.RegisterActivity(a.TranscribeMediaActivity)
	w.RegisterActivity(a.PrepareChunksActivity)
	w.RegisterActivity(a.EmbedChunksActivity)
	w.RegisterActivity(a.DeleteModuleChunksActivity)
	w.RegisterActivity(a.UpsertChunksActivity)
	w.RegisterActivity(a.AnalyzeContentActivity)
	w.RegisterActivity(a.GenerateCardsActivity)
	w.RegisterActivity(a.VerifyCardsActivity)
	w.RegisterActivity(a.SaveDeckActivity)
	w.RegisterActivity(a.RecordStageActivity)
	w.RegisterActivity(a.UpdateRunActivity)
}
