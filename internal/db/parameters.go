package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/banshee-data/carm/internal/carm"
)

var (
	// ErrParametersExist is returned when a session already has parameters.
	ErrParametersExist = errors.New("session parameters already set")
	// ErrParametersNotFound is returned when a session has no parameters.
	ErrParametersNotFound = errors.New("session parameters not found")
)

// InsertParameters stores the export payload for a session. Each session
// takes exactly one payload; an unset sample count is stored as the
// default.
func (db *DB) InsertParameters(sessionID string, p carm.ExportParameters) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRow(`SELECT status FROM sessions WHERE session_id = ?`, sessionID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) || SessionStatus(status) == StatusDeleting {
		return fmt.Errorf("%s: %w", sessionID, ErrSessionNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to query session: %w", err)
	}

	var existing int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM input_parameters WHERE session_id = ?`, sessionID).Scan(&existing); err != nil {
		return fmt.Errorf("failed to check parameters: %w", err)
	}
	if existing > 0 {
		return fmt.Errorf("%s: %w", sessionID, ErrParametersExist)
	}

	n := p.NumSamples
	if n <= 0 {
		n = carm.DefaultNumSamples
	}
	_, err = tx.Exec(`
		INSERT INTO input_parameters (
			session_id, carm_alpha, carm_alpha_kappa, carm_beta, carm_beta_kappa,
			carm_push_pull_translation, carm_head_foot_translation, carm_raise_lower_translation,
			carm_push_pull_std_dev, carm_head_foot_std_dev, carm_raise_lower_std_dev,
			source_to_detector_distance, detector_diameter, num_samples, created_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID,
		nullFloat(p.CarmAlpha), nullFloat(p.CarmAlphaKappa),
		nullFloat(p.CarmBeta), nullFloat(p.CarmBetaKappa),
		nullFloat(p.CarmPushPullTranslation), nullFloat(p.CarmHeadFootTranslation), nullFloat(p.CarmRaiseLowerTranslation),
		nullFloat(p.CarmPushPullStdDev), nullFloat(p.CarmHeadFootStdDev), nullFloat(p.CarmRaiseLowerStdDev),
		p.SourceToDetectorDistance, p.DetectorDiameter, n, db.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert parameters: %w", err)
	}
	return tx.Commit()
}

// GetParameters returns the stored payload for a session.
func (db *DB) GetParameters(sessionID string) (*carm.ExportParameters, error) {
	var (
		p                                 carm.ExportParameters
		alpha, alphaKappa, beta, betaKap  sql.NullFloat64
		pushPull, headFoot, raiseLower    sql.NullFloat64
		pushPullSD, headFootSD, raiseLoSD sql.NullFloat64
		diameter                          sql.NullFloat64
	)
	err := db.QueryRow(`
		SELECT p.carm_alpha, p.carm_alpha_kappa, p.carm_beta, p.carm_beta_kappa,
			p.carm_push_pull_translation, p.carm_head_foot_translation, p.carm_raise_lower_translation,
			p.carm_push_pull_std_dev, p.carm_head_foot_std_dev, p.carm_raise_lower_std_dev,
			p.source_to_detector_distance, p.detector_diameter, p.num_samples
		FROM input_parameters p
		JOIN sessions s ON s.session_id = p.session_id
		WHERE p.session_id = ? AND s.status != ?`,
		sessionID, string(StatusDeleting),
	).Scan(
		&alpha, &alphaKappa, &beta, &betaKap,
		&pushPull, &headFoot, &raiseLower,
		&pushPullSD, &headFootSD, &raiseLoSD,
		&p.SourceToDetectorDistance, &diameter, &p.NumSamples,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", sessionID, ErrParametersNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query parameters: %w", err)
	}

	p.CarmAlpha = floatPtr(alpha)
	p.CarmAlphaKappa = floatPtr(alphaKappa)
	p.CarmBeta = floatPtr(beta)
	p.CarmBetaKappa = floatPtr(betaKap)
	p.CarmPushPullTranslation = floatPtr(pushPull)
	p.CarmHeadFootTranslation = floatPtr(headFoot)
	p.CarmRaiseLowerTranslation = floatPtr(raiseLower)
	p.CarmPushPullStdDev = floatPtr(pushPullSD)
	p.CarmHeadFootStdDev = floatPtr(headFootSD)
	p.CarmRaiseLowerStdDev = floatPtr(raiseLoSD)
	if diameter.Valid {
		p.DetectorDiameter = diameter.Float64
	}
	return &p, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
