package analytics

import (
	"time"

	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/model"
)

// EnrichOptionChain runs every chain-level kernel (PCR, ATM straddle,
// Max Pain, OI buildup) and assembles the EnrichedChain of spec §3.
// The chain must already satisfy model.OptionChain.Validate.
func EnrichOptionChain(chain model.OptionChain, processedAt time.Time) model.EnrichedChain {
	pcr := ComputePCR(chain.Calls, chain.Puts)
	atm := ATMStrike(chain.Strikes, chain.SpotPrice)
	atmIdx := ATMIndex(chain.Strikes, atm)
	straddle := ATMStraddlePrice(chain.Calls, chain.Puts, atmIdx)
	maxPain := MaxPain(chain.Strikes, chain.Calls, chain.Puts, chain.SpotPrice)
	callBuildup, putBuildup := OIBuildup(chain.Calls, chain.Puts, chain.SpotPrice)

	return model.EnrichedChain{
		OptionChain:      chain,
		PCROI:            pcr.OI,
		PCROIUndefined:   pcr.OIUndefined,
		PCRVolume:        pcr.Volume,
		PCRVolUndefined:  pcr.VolumeUndefined,
		ATMStrike:        atm,
		ATMStraddlePrice: straddle,
		MaxPainStrike:    maxPain,
		TotalCallOI:      TotalOI(chain.Calls),
		TotalPutOI:       TotalOI(chain.Puts),
		CallBuildupOTM:   callBuildup,
		PutBuildupOTM:    putBuildup,
		ProcessedAt:      processedAt,
	}
}
