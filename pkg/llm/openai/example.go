package openai

// ExampleStory is returned by test-mode generation.
const ExampleStory = `# Pip and the Moon Lantern

Pip the little hedgehog could not sleep. The moon was hiding behind a cloud, and the garden felt very dark.

"I will find the moon," said Pip, and tiptoed past the sleepy tulips.

On the way Pip met Olla the owl. "The moon is only resting," Olla hooted softly. "Let us light a lantern until it wakes."

Together they gathered glow-worms, who were happy to help. The garden shone gold and green, and Pip was not scared any more.

When the cloud drifted away, the moon smiled down at the little lantern. "Thank you for keeping the garden bright," it seemed to say.

Pip yawned, curled into a round, prickly ball, and fell fast asleep.

*The End.*
`
