package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/grading"
	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/observability"
	"github.com/noah-isme/gema-grader/internal/repository"
)

// Build result sources, used as metric labels.
const (
	SourceHTTP = "http"
	SourceNATS = "nats"
	SourceAMQP = "amqp"
)

// BuildResultService grades build reports end to end.
type BuildResultService interface {
	Process(ctx context.Context, source string, payload dto.BuildResultRequest) (dto.BuildResultResponse, error)
}

type buildResultService struct {
	participations repository.ParticipationRepository
	exercises      repository.ExerciseRepository
	submissions    repository.SubmissionRepository
	testCases      TestCaseService
	calculator     *grading.Calculator
	results        ResultService
	locker         KeyedLocker
	validator      *validator.Validate
	logger         zerolog.Logger
	tracer         trace.Tracer
	now            func() time.Time
}

// NewBuildResultService wires the grading pipeline.
func NewBuildResultService(
	participations repository.ParticipationRepository,
	exercises repository.ExerciseRepository,
	submissions repository.SubmissionRepository,
	testCases TestCaseService,
	calculator *grading.Calculator,
	results ResultService,
	locker KeyedLocker,
	validate *validator.Validate,
	logger zerolog.Logger,
) BuildResultService {
	if locker == nil {
		locker = NewMemoryLocker()
	}
	return &buildResultService{
		participations: participations,
		exercises:      exercises,
		submissions:    submissions,
		testCases:      testCases,
		calculator:     calculator,
		results:        results,
		locker:         locker,
		validator:      validate,
		logger:         logger.With().Str("component", "build_result_service").Logger(),
		tracer:         otel.Tracer("github.com/noah-isme/gema-grader/internal/service/build_result"),
		now:            time.Now,
	}
}

func (s *buildResultService) Process(ctx context.Context, source string, payload dto.BuildResultRequest) (dto.BuildResultResponse, error) {
	attrs := []attribute.KeyValue{
		attribute.Int64("grading.participation_id", int64(payload.ParticipationID)),
		attribute.String("grading.commit_hash", payload.CommitHash),
		attribute.String("grading.source", source),
	}
	ctx, span := s.tracer.Start(ctx, "grading.process_build_result", trace.WithAttributes(attrs...))
	defer span.End()

	response, err := s.process(ctx, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.ResultsProcessed().WithLabelValues(source, "error").Inc()
		return dto.BuildResultResponse{}, err
	}

	span.SetAttributes(attribute.Float64("grading.score", response.Result.Score))
	observability.ResultsProcessed().WithLabelValues(source, "graded").Inc()
	observability.ResultScores().Observe(response.Result.Score)
	return response, nil
}

func (s *buildResultService) process(ctx context.Context, payload dto.BuildResultRequest) (dto.BuildResultResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.BuildResultResponse{}, err
	}

	participation, err := s.participations.GetByID(ctx, payload.ParticipationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.BuildResultResponse{}, ErrParticipationNotFound
		}
		return dto.BuildResultResponse{}, err
	}

	exercise, err := s.exercises.GetByID(ctx, participation.ExerciseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.BuildResultResponse{}, ErrExerciseNotFound
		}
		return dto.BuildResultResponse{}, err
	}

	unlock, err := s.locker.Lock(ctx, ParticipationLockKey(participation.ID))
	if err != nil {
		return dto.BuildResultResponse{}, err
	}
	defer unlock()

	submittedAt := payload.BuildRunDate.UTC()
	submission, err := s.submissions.FindOrCreate(ctx, participation.ID, payload.CommitHash, submittedAt)
	if err != nil {
		return dto.BuildResultResponse{}, fmt.Errorf("resolve submission: %w", err)
	}

	feedbacks := payload.ToFeedback()

	changed := false
	if participation.IsSolution() || exercise.IsSolutionParticipation(participation.ID) {
		changed, err = s.testCases.Extract(ctx, exercise, feedbacks)
		if err != nil {
			return dto.BuildResultResponse{}, err
		}
	}

	active, err := s.testCases.Active(ctx, exercise.ID)
	if err != nil {
		return dto.BuildResultResponse{}, fmt.Errorf("load active test cases: %w", err)
	}
	relevant := grading.RelevantTestCases(active, participation, exercise, s.now())

	result := &models.Result{
		SubmissionID:    submission.ID,
		ParticipationID: participation.ID,
		AssessmentType:  models.AssessmentTypeAutomatic,
		CompletionDate:  &submittedAt,
		Rated:           isRated(participation, exercise, submission.SubmissionDate),
		Feedbacks:       feedbacks,
	}

	if len(grading.DuplicateNames(feedbacks)) > 0 {
		observability.DuplicateDetections().Inc()
	}

	if _, err := s.calculator.CalculateScoreForResult(ctx, grading.ScoreInput{
		AllTestCases:          active,
		RelevantTestCases:     relevant,
		Result:                result,
		Exercise:              exercise,
		Participation:         participation,
		ApplySubmissionPolicy: !participation.IsTemplateOrSolution(),
	}); err != nil {
		return dto.BuildResultResponse{}, err
	}

	saved, err := s.results.ProcessNewAutomaticResult(ctx, participation, exercise, result)
	if err != nil {
		return dto.BuildResultResponse{}, err
	}

	s.logger.Info().
		Uint("participation_id", participation.ID).
		Uint("result_id", saved.ID).
		Str("correlation_id", middleware.CorrelationIDFromContext(ctx)).
		Str("commit_hash", payload.CommitHash).
		Float64("score", saved.Score).
		Bool("test_cases_changed", changed).
		Msg("build result graded")

	return dto.BuildResultResponse{
		Result:           dto.NewResultResponse(saved),
		TestCasesChanged: changed,
	}, nil
}

// isRated reports whether a submission counts towards the final grade.
func isRated(participation models.Participation, exercise models.ProgrammingExercise, submittedAt time.Time) bool {
	if participation.PracticeMode {
		return false
	}
	dueDate := exercise.DueDate
	if participation.IndividualDueDate != nil {
		dueDate = participation.IndividualDueDate
	}
	return dueDate == nil || !submittedAt.After(*dueDate)
}
