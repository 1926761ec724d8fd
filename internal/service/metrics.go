package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики сервисного слоя.
var (
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sm_submissions_total",
		Help: "Количество запросов на загрузку по итоговому статусу.",
	}, []string{"status"})

	analysisSubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sm_analysis_submissions_total",
		Help: "Количество регистраций анализов в Analysis Service по результату.",
	}, []string{"result"})

	rollbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sm_rollbacks_total",
		Help: "Количество откатов загрузки компенсирующими вызовами.",
	})

	dictionaryCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sm_dictionary_cache_hits_total",
		Help: "Количество попаданий в кэш словарей.",
	})
	dictionaryCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sm_dictionary_cache_misses_total",
		Help: "Количество промахов кэша словарей.",
	})
)
