// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assistant

import (
	"github.com/AleutianAI/AleutianAssist/services/assistant/config"
)

// =============================================================================
// Default Route Set
// =============================================================================
//
// The seed routes for a fresh install. Utterances are the Spanish phrasings
// the bot's users actually type; thresholds start conservative and are meant
// to be refined by calibration against real labeled traffic.

// defaultThreshold is the starting acceptance threshold for seeded routes.
const defaultThreshold = 0.35

// DefaultRouteNames lists the route names this build understands. Persisted
// configs carrying other names have those routes dropped on load.
func DefaultRouteNames() []string {
	return []string{"gmail", "web", "agenda", "notas"}
}

// DefaultRouterConfig returns the bootstrap config written when no persisted
// config exists.
func DefaultRouterConfig() *config.RouterConfig {
	return &config.RouterConfig{
		Version:     config.RouterConfigVersion,
		HybridAlpha: 0.72,
		MinScoreGap: 0.03,
		Routes: []config.RouteConfig{
			{
				Name:      "gmail",
				Threshold: defaultThreshold,
				Utterances: []string{
					"enviar correo",
					"enviame un correo",
					"manda un email",
					"escribe un correo a",
					"revisa mi correo",
					"tengo correos nuevos",
					"lee el ultimo email",
					"responder al correo de",
					"reenvia el correo",
					"busca en mi gmail",
				},
			},
			{
				Name:      "web",
				Threshold: defaultThreshold,
				Utterances: []string{
					"busca en internet",
					"buscar en la web",
					"que dice google sobre",
					"investiga sobre",
					"busca informacion de",
					"cual es el precio de",
					"que paso hoy con",
					"noticias de",
					"busca la pagina de",
				},
			},
			{
				Name:      "agenda",
				Threshold: defaultThreshold,
				Utterances: []string{
					"agendar una reunion",
					"crea un recordatorio",
					"recuerdame manana",
					"que tengo en la agenda",
					"mis eventos de hoy",
					"cancela la cita",
					"mueve la reunion",
					"agrega al calendario",
					"que reuniones tengo",
				},
			},
			{
				Name:      "notas",
				Threshold: defaultThreshold,
				Utterances: []string{
					"toma nota de",
					"apunta que",
					"guarda esto",
					"recuerda que mi",
					"anota lo siguiente",
					"que te dije sobre",
					"que sabes de mi",
					"busca en mis notas",
				},
			},
		},
	}
}
