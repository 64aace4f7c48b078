package chain

// Only the read methods the reconciler calls are declared.

const legacyPoolABI = `[
  {"type":"function","name":"getPrediction","stateMutability":"view",
   "inputs":[{"name":"predictionId","type":"uint256"}],
   "outputs":[
     {"name":"creator","type":"address"},
     {"name":"deadline","type":"uint256"},
     {"name":"yesTotalAmount","type":"uint256"},
     {"name":"noTotalAmount","type":"uint256"},
     {"name":"swipeYesTotalAmount","type":"uint256"},
     {"name":"swipeNoTotalAmount","type":"uint256"},
     {"name":"resolved","type":"bool"},
     {"name":"cancelled","type":"bool"},
     {"name":"outcome","type":"bool"},
     {"name":"participantCount","type":"uint256"}]},
  {"type":"function","name":"getUserStakes","stateMutability":"view",
   "inputs":[{"name":"predictionId","type":"uint256"},{"name":"user","type":"address"}],
   "outputs":[
     {"name":"yesAmount","type":"uint256"},
     {"name":"noAmount","type":"uint256"},
     {"name":"swipeYesAmount","type":"uint256"},
     {"name":"swipeNoAmount","type":"uint256"},
     {"name":"claimed","type":"bool"},
     {"name":"swipeClaimed","type":"bool"}]},
  {"type":"function","name":"getParticipants","stateMutability":"view",
   "inputs":[{"name":"predictionId","type":"uint256"}],
   "outputs":[{"name":"","type":"address[]"}]}
]`

const usdcPoolABI = `[
  {"type":"function","name":"getPrediction","stateMutability":"view",
   "inputs":[{"name":"predictionId","type":"uint256"}],
   "outputs":[
     {"name":"registered","type":"bool"},
     {"name":"creator","type":"address"},
     {"name":"deadline","type":"uint256"},
     {"name":"yesPool","type":"uint256"},
     {"name":"noPool","type":"uint256"},
     {"name":"resolved","type":"bool"},
     {"name":"cancelled","type":"bool"},
     {"name":"outcome","type":"bool"},
     {"name":"participantCount","type":"uint256"}]},
  {"type":"function","name":"getPosition","stateMutability":"view",
   "inputs":[{"name":"predictionId","type":"uint256"},{"name":"user","type":"address"}],
   "outputs":[
     {"name":"yesAmount","type":"uint256"},
     {"name":"noAmount","type":"uint256"},
     {"name":"yesEntryPrice","type":"uint256"},
     {"name":"noEntryPrice","type":"uint256"},
     {"name":"claimed","type":"bool"},
     {"name":"exitedEarly","type":"bool"}]},
  {"type":"function","name":"getParticipants","stateMutability":"view",
   "inputs":[{"name":"predictionId","type":"uint256"}],
   "outputs":[{"name":"","type":"address[]"}]}
]`
